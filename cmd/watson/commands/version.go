package commands

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// version is set at build time: -ldflags "-X github.com/wonny/watson/cmd/watson/commands.version=v1.2.0"
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "버전 정보",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(out, versionString())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// versionString appends the VCS revision when the binary carries one
func versionString() string {
	s := "watson " + version
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return s
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && len(setting.Value) >= 7 {
			return fmt.Sprintf("%s (%s, %s)", s, setting.Value[:7], info.GoVersion)
		}
	}
	return fmt.Sprintf("%s (%s)", s, info.GoVersion)
}
