// Package flatstore provides a flat string key-value store with a size ceiling.
//
// It is the persistent home of the JSON collections that the rest of the
// application reads and writes as whole values.
package flatstore

import (
	"errors"
	"fmt"
	"sort"
	"unicode/utf16"
)

//go:generate mockgen -source=store.go -destination=../mocks/flatstore/mock_store.go -package=mock_flatstore

// Store is a flat key-value string store.
type Store interface {
	// GetItem returns the value for key and whether it exists.
	GetItem(key string) (string, bool, error)
	// SetItem stores value under key. It fails with *QuotaError when the
	// resulting usage would exceed the quota.
	SetItem(key, value string) error
	RemoveItem(key string) error
	Keys() ([]string, error)
	// Usage returns the bytes currently used by all keys and values.
	Usage() (int64, error)
	Quota() int64
}

// ErrQuotaExceeded matches every *QuotaError via errors.Is.
var ErrQuotaExceeded = errors.New("flat store quota exceeded")

// QuotaError is returned by SetItem when a write does not fit.
type QuotaError struct {
	Key       string
	Requested int64
	Used      int64
	Quota     int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("write %q needs %d bytes, %d of %d already used: %s", e.Key, e.Requested, e.Used, e.Quota, ErrQuotaExceeded)
}

func (e *QuotaError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// EntrySize is the number of bytes a key/value pair counts against the quota.
// Strings are counted as UTF-16 code units times two, the way browsers
// account for local storage.
func EntrySize(key, value string) int64 {
	return int64(len(utf16.Encode([]rune(key)))+len(utf16.Encode([]rune(value)))) * 2
}

// checkQuota validates that replacing key's current value with value fits.
func checkQuota(items map[string]string, quota int64, key, value string) error {
	var used int64
	for k, v := range items {
		if k == key {
			continue
		}
		used += EntrySize(k, v)
	}
	requested := EntrySize(key, value)
	if quota > 0 && used+requested > quota {
		return &QuotaError{Key: key, Requested: requested, Used: used, Quota: quota}
	}
	return nil
}

func usage(items map[string]string) int64 {
	var used int64
	for k, v := range items {
		used += EntrySize(k, v)
	}
	return used
}

func sortedKeys(items map[string]string) []string {
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
