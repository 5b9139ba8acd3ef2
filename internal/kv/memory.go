package kv

import (
	"sync"
)

// MemStore is an in-process Store safe for concurrent use from many
// connection handlers.
type MemStore struct {
	mx     sync.RWMutex
	keys   map[string]string
	hashes map[string]map[string]string
}

func NewMemStore() *MemStore {
	return &MemStore{
		keys:   make(map[string]string),
		hashes: make(map[string]map[string]string),
	}
}

func (ms *MemStore) Get(key string) (string, bool, error) {
	ms.mx.RLock()
	defer ms.mx.RUnlock()

	v, ok := ms.keys[key]
	return v, ok, nil
}

func (ms *MemStore) Set(key, value string) error {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	ms.keys[key] = value
	return nil
}

func (ms *MemStore) SetNX(key, value string) (bool, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	if _, ok := ms.keys[key]; ok {
		return false, nil
	}
	ms.keys[key] = value
	return true, nil
}

func (ms *MemStore) Delete(key string) error {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	delete(ms.keys, key)
	delete(ms.hashes, key)
	return nil
}

func (ms *MemStore) HashGet(key, field string) (string, bool, error) {
	ms.mx.RLock()
	defer ms.mx.RUnlock()

	v, ok := ms.hashes[key][field]
	return v, ok, nil
}

func (ms *MemStore) HashSet(key, field, value string) error {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	h, ok := ms.hashes[key]
	if !ok {
		h = make(map[string]string)
		ms.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (ms *MemStore) HashDelete(key, field string) error {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	if h, ok := ms.hashes[key]; ok {
		delete(h, field)
		if len(h) == 0 {
			delete(ms.hashes, key)
		}
	}
	return nil
}

func (ms *MemStore) HashGetAll(key string) (map[string]string, error) {
	ms.mx.RLock()
	defer ms.mx.RUnlock()

	out := make(map[string]string, len(ms.hashes[key]))
	for f, v := range ms.hashes[key] {
		out[f] = v
	}
	return out, nil
}
