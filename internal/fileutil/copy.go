package fileutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// CopyOptions controls what CopyTree excludes.
type CopyOptions struct {
	// SkipNames are file or directory names excluded at any depth.
	SkipNames []string
	// SkipPaths are absolute paths never copied or descended into.
	// Used to keep the runs directory out of its own checkouts.
	SkipPaths []string
}

// CopyTree copies the tree rooted at src into dst and returns the
// number of files copied. Directories are created with the source
// permissions; symlinks are skipped, not followed.
func CopyTree(src, dst string, opts CopyOptions) (int, error) {
	srcAbs, err := filepath.Abs(src)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve source: %w", err)
	}
	info, err := os.Stat(srcAbs)
	if err != nil {
		return 0, fmt.Errorf("failed to access source: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("source is not a directory: %s", src)
	}

	skipNames := make(map[string]bool, len(opts.SkipNames))
	for _, name := range opts.SkipNames {
		skipNames[name] = true
	}
	skipPaths := make([]string, 0, len(opts.SkipPaths))
	for _, p := range opts.SkipPaths {
		if abs, err := filepath.Abs(p); err == nil {
			skipPaths = append(skipPaths, abs)
		}
	}

	copied := 0
	err = filepath.WalkDir(srcAbs, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		for _, skip := range skipPaths {
			if path == skip || strings.HasPrefix(path, skip+string(filepath.Separator)) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		if path != srcAbs && skipNames[d.Name()] {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(srcAbs, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		fi, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case fi.Mode()&os.ModeSymlink != 0:
			return nil
		case d.IsDir():
			return os.MkdirAll(target, fi.Mode().Perm())
		case fi.Mode().IsRegular():
			if err := copyFile(path, target, fi.Mode().Perm()); err != nil {
				return err
			}
			copied++
			return nil
		default:
			// Sockets, devices and friends have no place in a checkout.
			return nil
		}
	})
	if err != nil {
		return copied, fmt.Errorf("failed to copy tree: %w", err)
	}
	return copied, nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
