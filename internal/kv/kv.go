// Package kv defines the shared key-value store the presence registry
// is built on. The interface mirrors the handful of string and hash
// operations a redis-style store provides, so the in-process
// implementation can be swapped for a networked one without touching
// the registry.
package kv

type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	// SetNX sets the key only if it does not already exist and
	// reports whether the write happened.
	SetNX(key, value string) (bool, error)
	Delete(key string) error

	HashGet(key, field string) (string, bool, error)
	HashSet(key, field, value string) error
	HashDelete(key, field string) error
	HashGetAll(key string) (map[string]string, error)
}
