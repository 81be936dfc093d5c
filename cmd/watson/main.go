package main

import (
	"os"

	"github.com/wonny/watson/cmd/watson/commands"
)

// main is the entry point for the watson CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/watson [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
