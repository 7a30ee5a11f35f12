// Package store persists the position sizer's value table. Every backend
// speaks the same flat map of (state, action) → value and replaces the
// whole table on save, so a reader never observes a half-written table.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrNotFound is returned by Load when nothing has been saved yet.
	ErrNotFound = errors.New("store: table not found")
	// ErrCorrupt is returned by Load when the persisted data cannot be decoded.
	ErrCorrupt = errors.New("store: table corrupt")
)

// Key addresses one value: a discrete-state key and an action index.
type Key struct {
	State  string
	Action int
}

// String encodes the key as "<state>|<action>".
func (k Key) String() string {
	return k.State + "|" + strconv.Itoa(k.Action)
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	i := strings.LastIndexByte(s, '|')
	if i <= 0 {
		return Key{}, fmt.Errorf("%w: key %q", ErrCorrupt, s)
	}
	a, err := strconv.Atoi(s[i+1:])
	if err != nil || a < 0 {
		return Key{}, fmt.Errorf("%w: key %q", ErrCorrupt, s)
	}
	return Key{State: s[:i], Action: a}, nil
}

// Store loads and saves a complete table.
type Store interface {
	Load(ctx context.Context) (map[Key]float64, error)
	Save(ctx context.Context, values map[Key]float64) error
}

// Closer is implemented by stores holding a connection.
type Closer interface {
	Close() error
}

// Close releases s if it holds resources.
func Close(s Store) error {
	if c, ok := s.(Closer); ok {
		return c.Close()
	}
	return nil
}

func clone(values map[Key]float64) map[Key]float64 {
	out := make(map[Key]float64, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}
