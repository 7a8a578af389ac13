package storage

import (
	"context"
	"net/url"
	"sync"
	"time"
)

// Memory is an in-process Store for tests and single-node development
type Memory struct {
	// BaseURL prefixes presigned links
	BaseURL string

	mu      sync.RWMutex
	objects map[string]Object
}

// Object is a stored file
type Object struct {
	Body        []byte
	ContentType string
}

// NewMemory returns an empty store
func NewMemory() *Memory {
	return &Memory{BaseURL: "memory://statements", objects: make(map[string]Object)}
}

// Put stores a copy of body
func (m *Memory) Put(_ context.Context, key string, body []byte, contentType string) error {
	if key == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = Object{Body: append([]byte(nil), body...), ContentType: contentType}
	return nil
}

// Exists reports whether key was stored
func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok, nil
}

// PresignGet returns BaseURL/key with the expiry as a query parameter
func (m *Memory) PresignGet(_ context.Context, key string, ttl time.Duration) (string, time.Time, error) {
	if key == "" {
		return "", time.Time{}, ErrEmptyKey
	}
	if ttl <= 0 {
		ttl = defaultLinkTTL
	}
	expiresAt := time.Now().Add(ttl)
	q := url.Values{"expires": {expiresAt.UTC().Format(time.RFC3339)}}
	return m.BaseURL + "/" + key + "?" + q.Encode(), expiresAt, nil
}

// Get returns the stored object
func (m *Memory) Get(key string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	return obj, ok
}

var _ Store = (*Memory)(nil)
