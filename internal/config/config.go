// Package config loads dhtnode TOML files onto node defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/ringdht/internal/node"
)

const (
	StoreMemory = "memory"
	StoreBolt   = "bolt"
)

// fileConfig maps config.toml keys.
type fileConfig struct {
	ID               string   `toml:"id"`
	ListenAddr       string   `toml:"listen_addr"`
	AdminAddr        string   `toml:"admin_addr"`
	AdminToken       string   `toml:"admin_token"`
	PublicAddr       string   `toml:"public_addr"`
	Join             string   `toml:"join"`
	RangeStart       int      `toml:"range_start"`
	RangeEnd         int      `toml:"range_end"`
	Successor        string   `toml:"successor"`
	LeaveOnShutdown  bool     `toml:"leave_on_shutdown"`
	Store            string   `toml:"store"`
	StorePath        string   `toml:"store_path"`
	ReadTimeout      string   `toml:"read_timeout"`
	WriteTimeout     string   `toml:"write_timeout"`
	DialTimeout      string   `toml:"dial_timeout"`
	MaxBufferedBytes int      `toml:"max_buffered_bytes"`
	CorsOrigins      []string `toml:"cors_origins"`
	ReplyAttempts    int      `toml:"reply_attempts"`
}

// Node is a loaded dhtnode configuration.
type Node struct {
	Service   node.Config
	Store     string
	StorePath string
}

func Default() Node {
	return Node{
		Service:   node.DefaultConfig(),
		Store:     StoreMemory,
		StorePath: "data/ringdht.db",
	}
}

// Load decodes path over Default and validates the result.
func Load(path string) (Node, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Node{}, fmt.Errorf("load node config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Node{}, fmt.Errorf("load node config: unknown key %q", undecoded[0].String())
	}

	svc := &cfg.Service
	if meta.IsDefined("id") {
		svc.ID = strings.TrimSpace(raw.ID)
	}
	if meta.IsDefined("listen_addr") {
		svc.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("admin_addr") {
		svc.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("admin_token") {
		svc.AdminToken = strings.TrimSpace(raw.AdminToken)
	}
	if meta.IsDefined("public_addr") {
		svc.PublicAddr = strings.TrimSpace(raw.PublicAddr)
	}
	if meta.IsDefined("join") {
		svc.Join = strings.TrimSpace(raw.Join)
	}
	if meta.IsDefined("range_start") {
		v, err := slot("range_start", raw.RangeStart)
		if err != nil {
			return Node{}, err
		}
		svc.Range.Start = v
	}
	if meta.IsDefined("range_end") {
		v, err := slot("range_end", raw.RangeEnd)
		if err != nil {
			return Node{}, err
		}
		svc.Range.End = v
	}
	if meta.IsDefined("successor") {
		svc.Successor = strings.TrimSpace(raw.Successor)
	}
	if meta.IsDefined("leave_on_shutdown") {
		svc.LeaveOnShutdown = raw.LeaveOnShutdown
	}
	if meta.IsDefined("store") {
		cfg.Store = strings.ToLower(strings.TrimSpace(raw.Store))
	}
	if meta.IsDefined("store_path") {
		cfg.StorePath = strings.TrimSpace(raw.StorePath)
	}
	for key, dst := range map[string]struct {
		raw string
		out *time.Duration
	}{
		"read_timeout":  {raw.ReadTimeout, &svc.ReadTimeout},
		"write_timeout": {raw.WriteTimeout, &svc.WriteTimeout},
		"dial_timeout":  {raw.DialTimeout, &svc.DialTimeout},
	} {
		if !meta.IsDefined(key) {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(dst.raw))
		if err != nil || d <= 0 {
			return Node{}, fmt.Errorf("load node config: %s must be a positive duration, got %q", key, dst.raw)
		}
		*dst.out = d
	}
	if meta.IsDefined("max_buffered_bytes") {
		svc.Limits.MaxBufferedBytes = raw.MaxBufferedBytes
	}
	if meta.IsDefined("cors_origins") {
		svc.CorsOrigins = raw.CorsOrigins
	}
	if meta.IsDefined("reply_attempts") {
		svc.ReplyAttempts = raw.ReplyAttempts
	}

	if err := cfg.Validate(); err != nil {
		return Node{}, fmt.Errorf("load node config (%s): %w", path, err)
	}
	return cfg, nil
}

func (n Node) Validate() error {
	switch n.Store {
	case StoreMemory:
	case StoreBolt:
		if strings.TrimSpace(n.StorePath) == "" {
			return fmt.Errorf("store_path is required when store = %q", StoreBolt)
		}
	default:
		return fmt.Errorf("unsupported store %q (expected %s or %s)", n.Store, StoreMemory, StoreBolt)
	}
	return n.Service.Validate()
}

func slot(key string, v int) (uint8, error) {
	if v < 0 || v > 255 {
		return 0, fmt.Errorf("load node config: %s must be within 0..255, got %d", key, v)
	}
	return uint8(v), nil
}
