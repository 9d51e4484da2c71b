package config

import (
	"os"
	"path/filepath"
)

// EnvProjectDir overrides project root discovery when set.
const EnvProjectDir = "CONVEYOR_PROJECT"

// FindProjectRoot locates the project directory by walking up from
// startDir looking for a .conveyor directory. The CONVEYOR_PROJECT
// environment variable overrides the search. When no marker is found,
// startDir itself is returned.
func FindProjectRoot(startDir string) (string, error) {
	if env := os.Getenv(EnvProjectDir); env != "" {
		abs, err := filepath.Abs(env)
		if err != nil {
			return "", err
		}
		return abs, nil
	}

	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for cur := dir; ; {
		marker := filepath.Join(cur, ".conveyor")
		if info, err := os.Stat(marker); err == nil && info.IsDir() {
			return cur, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}

	return dir, nil
}

// ResolvePath joins path to projectDir unless it is already absolute.
func ResolvePath(projectDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(projectDir, path)
}
