package store

import (
	"context"
	"encoding/json"
	"errors"
)

// Store is a keyed record-collection store. A collection is an ordered
// sequence of JSON records read and written as a whole; a write replaces
// the entire collection or fails without partial effect.
type Store interface {
	Read(ctx context.Context, collection string) ([]json.RawMessage, error)
	Write(ctx context.Context, collection string, records []json.RawMessage) error
}

// ErrBadCollection is returned for collection names the backend cannot
// map to a storage location.
var ErrBadCollection = errors.New("invalid collection name")

func validCollection(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
