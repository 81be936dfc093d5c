// Package loader discovers strategy definitions in a directory.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wonny/watson/internal/strategyconfig"
	"github.com/wonny/watson/pkg/logger"
)

// Definition is one loaded strategy file
type Definition struct {
	Path     string
	Config   *strategyconfig.Config
	Snapshot *strategyconfig.Snapshot
}

// IsStrategyFile reports whether name looks like a strategy definition
func IsStrategyFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// LoadDir loads every *.yaml / *.yml file in dir, sorted by file name.
// Any invalid file fails the whole load; disabled strategies are skipped.
func LoadDir(dir string, log *logger.Logger) ([]Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read strategies directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !IsStrategyFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var defs []Definition
	seen := make(map[string]string)
	for _, name := range names {
		path := filepath.Join(dir, name)
		def, err := LoadFile(path, log)
		if err != nil {
			return nil, err
		}

		id := def.Config.Meta.StrategyID
		if prev, ok := seen[id]; ok {
			return nil, fmt.Errorf("strategy %q defined in both %s and %s", id, prev, path)
		}
		seen[id] = path

		if !def.Config.Meta.IsEnabled() {
			log.WithFields(map[string]interface{}{
				"strategy": id,
				"path":     path,
			}).Info("Strategy disabled, skipping")
			continue
		}
		defs = append(defs, *def)
	}

	log.WithFields(map[string]interface{}{
		"dir":        dir,
		"strategies": len(defs),
	}).Info("Strategies loaded")
	return defs, nil
}

// LoadFile loads and validates a single definition, logging its warnings
func LoadFile(path string, log *logger.Logger) (*Definition, error) {
	log.WithField("path", path).Info("Loading strategy")

	cfg, data, err := strategyconfig.Load(path)
	if err != nil {
		return nil, err
	}

	for _, w := range strategyconfig.Warn(cfg) {
		log.WithFields(map[string]interface{}{
			"strategy": cfg.Meta.StrategyID,
			"code":     w.Code,
		}).Warn(w.Message)
	}

	snap, err := strategyconfig.NewSnapshot(cfg, data, path)
	if err != nil {
		return nil, err
	}

	log.WithFields(map[string]interface{}{
		"strategy": cfg.Meta.StrategyID,
		"hash":     snap.ConfigHash[:12],
	}).Debug("Strategy definition hashed")

	return &Definition{Path: path, Config: cfg, Snapshot: snap}, nil
}
