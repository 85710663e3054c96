// Package prompt loads, fingerprints and persists agent system prompts.
package prompt

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spaolacci/murmur3"
)

// Load reads the prompt at path. When path is empty or the file does not
// exist it returns the baseline prompt and found=false.
func Load(path string) (text string, found bool, err error) {
	if path == "" {
		return Baseline(), false, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Baseline(), false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading prompt: %w", err)
	}
	return string(data), true, nil
}

// Save writes text to path atomically: readers see either the previous file
// or the complete new one.
func Save(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating prompt dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp prompt: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		return fmt.Errorf("writing prompt: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing prompt: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing prompt: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("setting prompt mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming prompt: %w", err)
	}
	return nil
}

// Fingerprint identifies a prompt by content: the hex murmur3-128 of its bytes.
func Fingerprint(text string) string {
	h1, h2 := murmur3.Sum128([]byte(text))
	return fmt.Sprintf("%016x%016x", h1, h2)
}

// Short is the first 12 characters of a fingerprint, for logs and labels.
func Short(fingerprint string) string {
	if len(fingerprint) > 12 {
		return fingerprint[:12]
	}
	return fingerprint
}
