package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# optiondesk configuration

[server]
# HTTP backend serving /instruments/all, /get-balance and /place-gtt
base_url = "http://localhost:8000"
# WebSocket base for the price, index and balance streams
ws_base_url = "ws://localhost:8000"
timeout = "10s"

[streams]
ltp_path = "/ws/ltp"
balance_path = "/ws/balance"
# "split" uses one index endpoint per exchange, "single" uses index_path
index_mode = "split"
nse_index_path = "/ws/nse-candle"
bse_index_path = "/ws/bse-candle"
index_path = "/ws/index"
# Fixed delay before reconnecting a dropped stream
reconnect_delay = "3s"
# Liveness ping on the price stream (0 disables)
ping_interval = "15s"
dial_timeout = "10s"

[trading]
# Profit target in INR used by auto-trade sizing
target_profit_goal = 1000.0
auto_trade = false
# NIFTY or SENSEX
default_underlying = "NIFTY"

[catalog]
# "http" (backend /instruments/all) or "kite" (Kite Connect instruments dump)
supplier = "http"
# "sqlite", "redis" or "none"
cache_backend = "sqlite"
# Defaults to <config dir>/catalog.db
cache_path = ""
redis_addr = "localhost:6379"
redis_password = ""
redis_db = 0

[metrics]
enabled = false
addr = ":9108"

[logging]
level = "info"
console = true
file = true
`

const credentialsTemplate = `# optiondesk credentials
# WARNING: Keep this file secure! Do not commit to version control.

[kite]
api_key = ""
access_token = ""
`

func createTemplate(configDir, name, content string, perm os.FileMode) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name)
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		return fmt.Errorf("writing %s template: %w", name, err)
	}

	return nil
}
