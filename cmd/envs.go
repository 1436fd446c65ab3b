package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/flexalloc/flexalloc-sim/sim"
	"github.com/sirupsen/logrus"
)

const envFilePattern = "env_*.json"

// generateEnvs draws count worlds from settings and writes each to outDir as
// env_NNNNN.json. Existing files are only replaced when overwrite is set.
func generateEnvs(settings []*sim.EnvSettings, seed int64, count int, outDir string, overwrite bool) ([]string, error) {
	if count <= 0 {
		return nil, fmt.Errorf("count must be positive, got %d", count)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", outDir, err)
	}
	engine := sim.NewEngine(settings, seed)
	files := make([]string, 0, count)
	for i := 0; i < count; i++ {
		path := filepath.Join(outDir, fmt.Sprintf("env_%05d.json", i))
		if !overwrite {
			if _, err := os.Stat(path); err == nil {
				return files, fmt.Errorf("%s already exists (use --overwrite to replace)", path)
			} else if !errors.Is(err, fs.ErrNotExist) {
				return files, err
			}
		}
		engine.Reset()
		if err := engine.SaveEnv(path); err != nil {
			return files, err
		}
		files = append(files, path)
	}
	logrus.Infof("wrote %d environments to %s", len(files), outDir)
	return files, nil
}

// listEnvs returns the environment files in dir in name order.
func listEnvs(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, envFilePattern))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// evalEnvs returns the configured evaluation environments. When no directory is
// configured, eval_env_count environments are generated into a directory under tmpRoot.
func evalEnvs(cfg *RunConfig, settings []*sim.EnvSettings, tmpRoot string) ([]string, error) {
	if cfg.EvalEnvDir != "" {
		files, err := listEnvs(cfg.resolve(cfg.EvalEnvDir))
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no %s files in %s", envFilePattern, cfg.EvalEnvDir)
		}
		return files, nil
	}
	if cfg.EvalEnvCount == 0 {
		return nil, nil
	}
	// Offset the seed so evaluation worlds differ from the first training worlds.
	return generateEnvs(settings, cfg.Seed+1, cfg.EvalEnvCount, filepath.Join(tmpRoot, "eval_envs"), true)
}
