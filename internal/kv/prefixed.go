package kv

import (
	"context"
	"strings"
)

type prefixed struct {
	next   Store
	prefix string
}

// Prefixed namespaces every key as "<prefix>:<key>". An empty prefix returns next unchanged.
func Prefixed(next Store, prefix string) Store {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || next == nil {
		return next
	}
	return prefixed{next: next, prefix: prefix}
}

func (p prefixed) Load(ctx context.Context, key string) ([]byte, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrEmptyKey
	}
	return p.next.Load(ctx, p.prefix+":"+key)
}

func (p prefixed) Save(ctx context.Context, key string, value []byte) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	return p.next.Save(ctx, p.prefix+":"+key, value)
}
