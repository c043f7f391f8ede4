package filestore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type localConfig struct {
	Dir string `json:"dir"`
}

type localSource struct {
	dir string
}

func init() {
	Register("local", createLocalSource)
}

func createLocalSource(args interface{}) (Source, error) {
	config := &localConfig{}
	if err := decodeConfig(args, config); err != nil {
		return nil, err
	}
	if config.Dir == "" {
		return nil, fmt.Errorf("local corpus dir is required")
	}
	return NewLocalSource(config.Dir), nil
}

func NewLocalSource(dir string) Source {
	return &localSource{dir: dir}
}

// List returns the keys of regular files under dir/prefix, relative to dir.
func (s *localSource) List(ctx context.Context, prefix string) ([]string, error) {
	root := filepath.Join(s.dir, filepath.FromSlash(strings.Trim(prefix, "/")))
	var keys []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *localSource) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	_ = ctx
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("invalid file key")
	}
	return os.Open(filepath.Join(s.dir, clean))
}
