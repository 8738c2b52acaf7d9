package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/ringdht/internal/pdu"
	"github.com/danmuck/ringdht/internal/ring"
	"github.com/danmuck/ringdht/internal/store"
	"github.com/danmuck/ringdht/internal/testutil/testlog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestTemplateLoads(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "cmd", "dhtnode", "config.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
	if err := WriteTemplate(path, true); err != nil {
		t.Fatalf("overwrite template: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	if cfg.Service.AdminAddr != "127.0.0.1:7480" {
		t.Fatalf("admin addr=%q", cfg.Service.AdminAddr)
	}
	if cfg.Service.Range != ring.Full {
		t.Fatalf("range=%s", cfg.Service.Range)
	}
	if !cfg.Service.LeaveOnShutdown {
		t.Fatalf("expected leave_on_shutdown")
	}
	if cfg.Store != StoreMemory {
		t.Fatalf("store=%q", cfg.Store)
	}
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
id = "node-b"
listen_addr = "127.0.0.1:7401"
range_start = 10
range_end = 20
successor = "127.0.0.1:7402"
store = "BOLT"
store_path = "`+filepath.ToSlash(filepath.Join(t.TempDir(), "b.db"))+`"
dial_timeout = "750ms"
max_buffered_bytes = 4096
reply_attempts = 2
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	svc := cfg.Service
	if svc.ID != "node-b" || svc.ListenAddr != "127.0.0.1:7401" {
		t.Fatalf("identity: %+v", svc)
	}
	if svc.Range != (pdu.KeyRange{Start: 10, End: 20}) {
		t.Fatalf("range=%s", svc.Range)
	}
	if svc.DialTimeout != 750*time.Millisecond {
		t.Fatalf("dial timeout=%v", svc.DialTimeout)
	}
	if svc.ReadTimeout != 30*time.Second {
		t.Fatalf("read timeout default lost: %v", svc.ReadTimeout)
	}
	if svc.Limits.MaxBufferedBytes != 4096 || svc.ReplyAttempts != 2 {
		t.Fatalf("limits=%+v attempts=%d", svc.Limits, svc.ReplyAttempts)
	}
	if cfg.Store != StoreBolt {
		t.Fatalf("store=%q", cfg.Store)
	}

	st, err := cfg.OpenStore()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	if _, ok := st.(*store.Bolt); !ok {
		t.Fatalf("store type=%T", st)
	}
}

func TestLoadRejects(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"unknown key":   `bogus = 1`,
		"bad store":     `store = "redis"`,
		"bad duration":  `read_timeout = "soon"`,
		"neg duration":  `write_timeout = "-1s"`,
		"range":         `range_end = 300`,
		"join and succ": "join = \"127.0.0.1:7400\"\nsuccessor = \"127.0.0.1:7401\"",
		"bolt no path":  "store = \"bolt\"\nstore_path = \"\"",
		"syntax":        `listen_addr = `,
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil || !strings.Contains(err.Error(), "load node config") {
		t.Fatalf("missing file err=%v", err)
	}
}
