package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "unix", "local":
		return unixTemplate, nil
	case "tcp", "network":
		return tcpTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const unixTemplate = `# daemon on a local socket (port unset or 0)
socket_path = "/tmp/BTstack"
max_payload_bytes = 2000
connect_timeout = "5s"
write_timeout = "5s"
join_timeout = "2s"
unblock = "deadline"

reconnect = false
backoff_initial = "250ms"
backoff_max = "5s"
backoff_multiplier = 2.0
backoff_jitter = true

log_level = "info"
`

const tcpTemplate = `# daemon on TCP (non-zero port selects the network transport)
host = "127.0.0.1"
port = 13333
max_payload_bytes = 2000
connect_timeout = "5s"
write_timeout = "5s"
join_timeout = "2s"
unblock = "deadline"

reconnect = true
max_connect_attempts = 0
backoff_initial = "250ms"
backoff_max = "5s"
backoff_multiplier = 2.0
backoff_jitter = true

metrics_addr = "127.0.0.1:9464"
log_level = "info"
`
