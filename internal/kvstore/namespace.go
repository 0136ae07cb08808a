package kvstore

import (
	"context"

	"github.com/cortexrd/Knack-Toolkit-Library-sub001/types"
)

// Namespaced prefixes every key of an underlying store.
type Namespaced struct {
	store  types.KVStore
	prefix string
}

var _ types.KVStore = (*Namespaced)(nil)

// Namespace wraps store so every key is stored as prefix + "." + key.
// An empty prefix returns store unchanged.
func Namespace(store types.KVStore, prefix string) types.KVStore {
	if prefix == "" {
		return store
	}

	return &Namespaced{store: store, prefix: prefix + "."}
}

// Get reads the namespaced key.
func (n *Namespaced) Get(ctx context.Context, key string) (string, error) {
	return n.store.Get(ctx, n.prefix+key)
}

// Set writes the namespaced key.
func (n *Namespaced) Set(ctx context.Context, key, value string) error {
	return n.store.Set(ctx, n.prefix+key, value)
}

// Remove deletes the namespaced key.
func (n *Namespaced) Remove(ctx context.Context, key string) error {
	return n.store.Remove(ctx, n.prefix+key)
}
