package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// fileDocument is the on-disk layout:
//
//	{"q_table": {"<state>": {"<action>": value}}, "metadata": {...}}
type fileDocument struct {
	QTable   map[string]map[string]float64 `json:"q_table"`
	Metadata fileMetadata                  `json:"metadata"`
}

type fileMetadata struct {
	LastUpdate time.Time `json:"last_update"`
	NumStates  int       `json:"num_states"`
	NumValues  int       `json:"num_values"`
}

// FileStore keeps the table in a JSON document, replaced atomically.
type FileStore struct {
	path string
	now  func() time.Time
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

func (f *FileStore) Load(ctx context.Context) (map[Key]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	var doc fileDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, f.path, err)
	}
	out := make(map[Key]float64)
	for state, row := range doc.QTable {
		if state == "" {
			return nil, fmt.Errorf("%w: empty state key", ErrCorrupt)
		}
		for action, v := range row {
			a, err := strconv.Atoi(action)
			if err != nil || a < 0 {
				return nil, fmt.Errorf("%w: action %q", ErrCorrupt, action)
			}
			out[Key{State: state, Action: a}] = v
		}
	}
	return out, nil
}

// Save writes to a temp file in the same directory, syncs it and renames it
// over the target.
func (f *FileStore) Save(ctx context.Context, values map[Key]float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc := fileDocument{QTable: make(map[string]map[string]float64)}
	for k, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("value for %s is not finite", k)
		}
		row, ok := doc.QTable[k.State]
		if !ok {
			row = make(map[string]float64)
			doc.QTable[k.State] = row
		}
		row[strconv.Itoa(k.Action)] = v
	}
	doc.Metadata = fileMetadata{
		LastUpdate: f.now().UTC(),
		NumStates:  len(doc.QTable),
		NumValues:  len(values),
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode table: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		cleanup()
		return fmt.Errorf("rename to %s: %w", f.path, err)
	}
	return nil
}
