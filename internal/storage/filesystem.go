// Package storage persists generated portraits to the local filesystem
// and keeps the temp workspace tidy.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileStore owns the durable output directory and the temp directory.
// Output writes never overwrite: name collisions get a numeric suffix.
type FileStore struct {
	outputDir string
	tempDir   string
}

func NewFileStore(outputDir, tempDir string) (*FileStore, error) {
	outputDir = strings.TrimSpace(outputDir)
	tempDir = strings.TrimSpace(tempDir)
	if outputDir == "" || tempDir == "" {
		return nil, errors.New("storage: output and temp directories are required")
	}
	for _, dir := range []string{outputDir, tempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("storage: ensure directory %s: %w", dir, err)
		}
	}
	return &FileStore{outputDir: outputDir, tempDir: tempDir}, nil
}

func (s *FileStore) OutputDir() string { return s.outputDir }
func (s *FileStore) TempDir() string   { return s.tempDir }

// SaveArtifact writes a generated image to the output directory as
// baby_<label>_<unix>.png, suffixing the name if the path already exists.
func (s *FileStore) SaveArtifact(label string, data []byte) (string, error) {
	base := fmt.Sprintf("baby_%s_%d", label, time.Now().Unix())
	return s.writeUnique(s.outputDir, base, ".png", data)
}

// SaveTemp writes intermediate data under the temp directory.
func (s *FileStore) SaveTemp(prefix string, data []byte) (string, error) {
	base := fmt.Sprintf("%s_%d", prefix, time.Now().Unix())
	return s.writeUnique(s.tempDir, base, ".png", data)
}

// writeUnique appends _1, _2, ... until the filename is free. Not
// overwriting on collision is a correctness property: two artifacts
// generated within the same second must both survive. O_EXCL makes the
// claim atomic, so concurrent writers racing for the same name cannot
// clobber each other.
func (s *FileStore) writeUnique(dir, base, ext string, data []byte) (string, error) {
	name := base + ext
	for counter := 1; ; counter++ {
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			name = fmt.Sprintf("%s_%d%s", base, counter, ext)
			continue
		}
		if err != nil {
			return "", fmt.Errorf("storage: write %s: %w", name, err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", fmt.Errorf("storage: write %s: %w", name, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("storage: write %s: %w", name, err)
		}
		return path, nil
	}
}

// ListOutputs returns the persisted image paths, newest first.
func (s *FileStore) ListOutputs() ([]string, error) {
	entries, err := os.ReadDir(s.outputDir)
	if err != nil {
		return nil, err
	}
	type timed struct {
		path string
		mod  time.Time
	}
	var files []timed
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.ToLower(entry.Name())
		if !strings.HasSuffix(name, ".png") && !strings.HasSuffix(name, ".jpg") &&
			!strings.HasSuffix(name, ".jpeg") && !strings.HasSuffix(name, ".webp") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, timed{path: filepath.Join(s.outputDir, entry.Name()), mod: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod.After(files[j].mod) })
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.path
	}
	return paths, nil
}
