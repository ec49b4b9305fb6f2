package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/gaspardpetit/editorbridge/internal/logx"
)

// File keeps state in a YAML document. Writes go through a temporary file
// and a rename so a crash never leaves a truncated document behind.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile returns a store backed by path. The file is created on first save.
func NewFile(path string) *File { return &File{path: path} }

// Path returns the backing file.
func (f *File) Path() string { return f.path }

func (f *File) Load(context.Context) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("read state: %w", err)
	}
	var st State
	if err := yaml.Unmarshal(b, &st); err != nil {
		// keep the unreadable document for inspection and start over
		bad := f.path + ".corrupt"
		if rerr := os.Rename(f.path, bad); rerr == nil {
			logx.Log.Warn().Err(err).Str("path", bad).Msg("state file unreadable; moved aside")
		}
		return State{}, nil
	}
	return st, nil
}

func (f *File) Save(_ context.Context, s State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

func (f *File) Close() error { return nil }
