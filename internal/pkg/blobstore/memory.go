package blobstore

import (
	"context"
	"sync"
)

// Memory is an in-process Store for tests and local runs without object storage.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]Object
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]Object)}
}

func (m *Memory) Download(_ context.Context, key string) (*Object, error) {
	k, err := validKey(key)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	obj, ok := m.objects[k]
	m.mu.RUnlock()
	if !ok {
		return nil, notFound(k)
	}
	obj.Data = append([]byte(nil), obj.Data...)
	return &obj, nil
}

func (m *Memory) Upload(_ context.Context, key string, data []byte, contentType string) error {
	k, err := validKey(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.objects[k] = Object{Key: k, Data: append([]byte(nil), data...), ContentType: contentTypeOf(contentType, data)}
	m.mu.Unlock()
	return nil
}
