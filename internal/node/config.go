package node

import (
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/ringdht/internal/pdu"
	"github.com/danmuck/ringdht/internal/pdu/stream"
	"github.com/danmuck/ringdht/internal/ring"
)

// Config is the runtime configuration of one ring member.
type Config struct {
	ID string
	// ListenAddr accepts PDU connections.
	ListenAddr string
	// AdminAddr serves the HTTP admin API; empty disables it.
	AdminAddr string
	// AdminToken, when set, is required as a bearer token on state routes.
	AdminToken string
	// PublicAddr is the IPv4 host:port peers use to reach this node. Empty
	// means the listener address.
	PublicAddr string
	// Join is an existing member to join through. Empty starts a new ring
	// owning Range.
	Join      string
	Range     pdu.KeyRange
	Successor string
	// LeaveOnShutdown hands the range to the successor before exiting.
	LeaveOnShutdown bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	DialTimeout  time.Duration
	Limits       stream.Limits
	CorsOrigins  []string

	ReplyAttempts int
	ReplyBackoff  BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		ID:            "ringdht.local",
		ListenAddr:    "127.0.0.1:7400",
		Range:         ring.Full,
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  5 * time.Second,
		DialTimeout:   3 * time.Second,
		Limits:        stream.DefaultLimits(),
		CorsOrigins:   []string{"http://localhost:3000"},
		ReplyAttempts: 4,
		ReplyBackoff: BackoffConfig{
			InitialDelay: 100 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     2 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero values from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if strings.TrimSpace(c.ID) == "" {
		c.ID = def.ID
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		c.ListenAddr = def.ListenAddr
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.Limits.MaxBufferedBytes == 0 {
		c.Limits.MaxBufferedBytes = def.Limits.MaxBufferedBytes
	}
	if c.Limits.ReadChunkBytes == 0 {
		c.Limits.ReadChunkBytes = def.Limits.ReadChunkBytes
	}
	if c.ReplyAttempts <= 0 {
		c.ReplyAttempts = def.ReplyAttempts
	}
	if c.ReplyBackoff.InitialDelay <= 0 {
		c.ReplyBackoff = def.ReplyBackoff
	}
	return c
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("node config missing listen addr")
	}
	if addr := strings.TrimSpace(c.PublicAddr); addr != "" {
		if _, err := pdu.ParseNodeAddress(addr); err != nil {
			return fmt.Errorf("node config public addr %q: %w", addr, err)
		}
	}
	if addr := strings.TrimSpace(c.Successor); addr != "" {
		if _, err := pdu.ParseNodeAddress(addr); err != nil {
			return fmt.Errorf("node config successor %q: %w", addr, err)
		}
	}
	if strings.TrimSpace(c.Join) != "" && strings.TrimSpace(c.Successor) != "" {
		return fmt.Errorf("node config: successor is learned on join, set only one of join and successor")
	}
	if err := c.Limits.Validate(); err != nil {
		return fmt.Errorf("node config limits: %w", err)
	}
	if c.ReplyAttempts < 1 {
		return fmt.Errorf("node config reply attempts must be >= 1")
	}
	return nil
}
