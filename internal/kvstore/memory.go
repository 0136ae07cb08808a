package kvstore

import (
	"context"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/cortexrd/Knack-Toolkit-Library-sub001/types"
)

// Memory is an in-process KVStore.
type Memory struct {
	data *xsync.Map[string, string]
}

var _ types.KVStore = (*Memory)(nil)

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{data: xsync.NewMap[string, string]()}
}

// Get returns the value for key or types.ErrKeyNotFound.
func (m *Memory) Get(_ context.Context, key string) (string, error) {
	value, ok := m.data.Load(key)
	if !ok {
		return "", types.ErrKeyNotFound
	}

	return value, nil
}

// Set stores value under key.
func (m *Memory) Set(_ context.Context, key, value string) error {
	m.data.Store(key, value)
	return nil
}

// Remove deletes key.
func (m *Memory) Remove(_ context.Context, key string) error {
	m.data.Delete(key)
	return nil
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	return m.data.Size()
}
