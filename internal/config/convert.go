package config

import (
	"github.com/danmuck/ringdht/internal/store"
)

// OpenStore opens the configured record store.
func (n Node) OpenStore() (store.Store, error) {
	if n.Store == StoreBolt {
		return store.OpenBolt(n.StorePath)
	}
	return store.NewMemory(), nil
}
