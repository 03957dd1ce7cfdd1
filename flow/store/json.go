package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// jsonDocument is the on-disk shape of one location: node_id -> {fingerprint, value}.
// value is kept as json.RawMessage so arbitrary node-kind-encoded payloads
// round-trip byte-for-byte without Flow needing to understand their shape.
type jsonDocument map[string]jsonEntry

type jsonEntry struct {
	Fingerprint string          `json:"fingerprint"`
	Value       json.RawMessage `json:"value"`
}

// JSONStore persists each location as a single self-describing JSON file
// under path/<location>.json. It satisfies the value store's
// "human-inspectable textual container" requirement directly: any text
// editor or jq can read a location's current contents.
//
// Writes are crash-safe: JSONStore writes to a temp file in the same
// directory and renames it over the target, so a crash mid-write never
// corrupts the previous durable contents.
type JSONStore struct {
	mu       sync.Mutex
	dir      string
	location string
	doc      jsonDocument
}

// NewJSONStore returns a JSONStore rooted at dir. dir is created if it
// does not exist.
func NewJSONStore(dir string) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("flow/store: create dir %s: %w", dir, err)
	}
	return &JSONStore{dir: dir, doc: jsonDocument{}}, nil
}

func (s *JSONStore) path(location string) string {
	return filepath.Join(s.dir, location+".json")
}

func (s *JSONStore) Bind(_ context.Context, location string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.location = location

	data, err := os.ReadFile(s.path(location))
	if os.IsNotExist(err) {
		s.doc = jsonDocument{}
		return nil
	}
	if err != nil {
		return fmt.Errorf("flow/store: read %s: %w", location, err)
	}
	var doc jsonDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("flow/store: parse %s: %w", location, err)
	}
	s.doc = doc
	return nil
}

func (s *JSONStore) Lookup(_ context.Context, nodeID int, fingerprint string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.doc[nodeKey(nodeID)]
	if !ok || entry.Fingerprint != fingerprint {
		return nil, false, nil
	}
	out := make([]byte, len(entry.Value))
	copy(out, entry.Value)
	return out, true, nil
}

func (s *JSONStore) Store(_ context.Context, nodeID int, fingerprint string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		s.doc = jsonDocument{}
	}
	s.doc[nodeKey(nodeID)] = jsonEntry{Fingerprint: fingerprint, Value: json.RawMessage(value)}
	return s.flushLocked()
}

func (s *JSONStore) Forget(_ context.Context, nodeID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.doc, nodeKey(nodeID))
	return s.flushLocked()
}

// flushLocked writes s.doc to a temp file and renames it over the target
// path, giving crash-safe durability. Caller must hold s.mu.
func (s *JSONStore) flushLocked() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("flow/store: marshal %s: %w", s.location, err)
	}
	target := s.path(s.location)
	tmp, err := os.CreateTemp(s.dir, "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return fmt.Errorf("flow/store: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("flow/store: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("flow/store: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("flow/store: rename temp file: %w", err)
	}
	return nil
}

func (s *JSONStore) Close() error { return nil }

func nodeKey(nodeID int) string { return fmt.Sprintf("%d", nodeID) }
