package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteTemplate writes an annotated dhtnode config to path.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(nodeTemplate), 0o600)
}

const nodeTemplate = `# dhtnode configuration
id = "ringdht.local"
listen_addr = "127.0.0.1:7400"
admin_addr = "127.0.0.1:7480"
# admin_token = "change-me"
# public_addr = "203.0.113.7:7400"

# Set join to enter an existing ring; leave it unset to start one that owns
# range_start..range_end.
# join = "127.0.0.1:7401"
range_start = 0
range_end = 255
leave_on_shutdown = true

store = "memory"
store_path = "data/ringdht.db"

read_timeout = "30s"
write_timeout = "5s"
dial_timeout = "3s"
max_buffered_bytes = 65536
reply_attempts = 4
cors_origins = ["http://localhost:3000"]
`
