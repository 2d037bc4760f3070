// Package kvstore persists small named values: the bucket registry,
// navigation history and UI preferences.
package kvstore

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Store is a synchronous get/set/delete map of named string values.
// Implementations must be safe for concurrent use.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// Well-known keys.
const (
	KeyBuckets           = "buckets"
	KeyGroups            = "groups"
	KeyCurrentBucket     = "currentBucket"
	KeyLegacyCredentials = "credentials"
	KeyNavigationHistory = "navigationHistory"
	KeyTheme             = "theme"
)

// ErrUnreadable marks a value that is present but cannot be recovered,
// for example one sealed under a different key.
var ErrUnreadable = errors.New("unreadable value")

// GetJSON decodes the value at key into v. It reports false when the key
// is absent. When the key is present but unreadable or undecodable it
// reports true with the error, so callers can treat corrupt state as empty.
func GetJSON(s Store, key string, v interface{}) (bool, error) {
	raw, ok, err := s.Get(key)
	if err != nil {
		return errors.Is(err, ErrUnreadable), err
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return true, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it at key.
func SetJSON(s Store, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return s.Set(key, string(data))
}
