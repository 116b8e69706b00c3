// Package kv persists a handful of singleton values in one JSON document on disk.
package kv

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotFound is returned by Get when the key has never been set.
var ErrNotFound = errors.New("kv: key not found")

// StatusMessageID is the key of the live status message handle.
const StatusMessageID = "status_message_id"

// Doc is a JSON object stored at a single path. Every Set rewrites the whole file
// through a temporary file and a rename, so a crash never leaves a truncated document.
type Doc struct {
	path string

	mu     sync.Mutex
	values map[string]string
}

// Open loads the document at path. A missing file is an empty document.
func Open(path string) (*Doc, error) {
	d := &Doc{path: path, values: map[string]string{}}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read kv document %s: %w", path, err)
	}
	if len(data) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(data, &d.values); err != nil {
		return nil, fmt.Errorf("decode kv document %s: %w", path, err)
	}
	return d, nil
}

// Get returns the value stored under key.
func (d *Doc) Get(key string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set stores value under key and flushes the document to disk.
func (d *Doc) Set(key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev, had := d.values[key]
	d.values[key] = value
	if err := d.flush(); err != nil {
		if had {
			d.values[key] = prev
		} else {
			delete(d.values, key)
		}
		return err
	}
	return nil
}

func (d *Doc) flush() error {
	data, err := json.MarshalIndent(d.values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode kv document: %w", err)
	}

	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create kv directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".kv-*.json")
	if err != nil {
		return fmt.Errorf("create kv temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write kv temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close kv temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), d.path); err != nil {
		return fmt.Errorf("replace kv document %s: %w", d.path, err)
	}
	return nil
}
