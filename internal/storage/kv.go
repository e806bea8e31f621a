package storage

import (
	"context"
	"strconv"
)

// KVStore is a string-keyed durable store. A missing key is not an error:
// Get reports it with ok == false so callers can fall back to a default.
type KVStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	Set(ctx context.Context, key, value string) error

	Delete(ctx context.Context, key string) error
}

// GetBool reads a "true"/"false" flag. Absent or unparsable values yield fallback.
func GetBool(ctx context.Context, store KVStore, key string, fallback bool) (bool, error) {
	value, ok, err := store.Get(ctx, key)
	if err != nil {
		return fallback, err
	}
	if !ok {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback, nil
	}
	return b, nil
}

func SetBool(ctx context.Context, store KVStore, key string, value bool) error {
	return store.Set(ctx, key, strconv.FormatBool(value))
}
