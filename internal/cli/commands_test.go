package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optiondesk/internal/logging"
)

const instrumentsBody = `{"status":"success","count":4,"data":[
	{"instrument_key":"NSE_FO|1","trading_symbol":"NIFTY 24000 CE 30 DEC 99","name":"NIFTY","strike_price":24000,"instrument_type":"CE","expiry":"2099-12-30","lot_size":75},
	{"instrument_key":"NSE_FO|2","trading_symbol":"NIFTY 24000 PE 30 DEC 99","name":"NIFTY","strike_price":24000,"instrument_type":"PE","expiry":"2099-12-30","lot_size":75},
	{"instrument_key":"NSE_FO|3","trading_symbol":"NIFTY 24000 CE 23 DEC 99","name":"NIFTY","strike_price":24000,"instrument_type":"CE","expiry":"2099-12-23","lot_size":75},
	{"instrument_key":"BSE_FO|4","trading_symbol":"SENSEX 80000 CE 24 DEC 99","name":"SENSEX","strike_price":80000,"instrument_type":"CE","expiry":"2099-12-24","lot_size":20}
]}`

type backend struct {
	*httptest.Server
	mu    sync.Mutex
	forms []map[string]string
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{}
	mux := http.NewServeMux()
	mux.HandleFunc("/get-balance", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"success","data":{"data":{"equity":{"available_margin":100000.75}}}}`)
	})
	mux.HandleFunc("/instruments/all", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, instrumentsBody)
	})
	record := func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		form := map[string]string{"path": r.URL.Path}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		b.mu.Lock()
		b.forms = append(b.forms, form)
		b.mu.Unlock()
		fmt.Fprint(w, `{"status":"success","gtt_order_id":"G-42"}`)
	}
	mux.HandleFunc("/place-gtt", record)
	mux.HandleFunc("/modify-gtt", record)

	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Close)
	return b
}

func configDir(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`
[server]
base_url = %q
ws_base_url = "ws://127.0.0.1:1"

[catalog]
cache_backend = "none"

[logging]
console = false
file = false
`, baseURL)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0644))
	return dir
}

func execute(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(zerolog.Nop())
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(append(args, "--config", dir))
	err := root.Execute()
	return buf.String(), err
}

func decode(t *testing.T, out string) map[string]interface{} {
	t.Helper()
	var v map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, t.TempDir(), "version", "--json")
	require.NoError(t, err)
	assert.Equal(t, Version, decode(t, out)["version"])
}

func TestConfigPathAndValidate(t *testing.T) {
	dir := configDir(t, "http://localhost:8000")

	out, err := execute(t, dir, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, dir+"\n", out)

	out, err = execute(t, dir, "config", "validate", "--json")
	require.NoError(t, err)
	assert.Equal(t, true, decode(t, out)["valid"])
}

func TestCommandContextCarriesLogger(t *testing.T) {
	dir := configDir(t, "http://localhost:8000")
	root := NewRootCmd(zerolog.Nop())

	level := zerolog.Disabled
	root.AddCommand(&cobra.Command{
		Use: "noop",
		RunE: func(cmd *cobra.Command, args []string) error {
			level = logging.FromContext(cmd.Context()).GetLevel()
			return nil
		},
	})
	root.SetArgs([]string{"noop", "--config", dir})
	require.NoError(t, root.Execute())
	assert.NotEqual(t, zerolog.Disabled, level)
}

func TestBalanceCommand(t *testing.T) {
	b := newBackend(t)
	out, err := execute(t, configDir(t, b.URL), "balance", "--json")
	require.NoError(t, err)
	assert.Equal(t, "100000", decode(t, out)["balance"])
}

func TestInstrumentsSearchNearestExpiry(t *testing.T) {
	b := newBackend(t)
	dir := configDir(t, b.URL)

	out, err := execute(t, dir, "instruments", "search", "24000", "--json")
	require.NoError(t, err)
	res := decode(t, out)
	assert.Equal(t, "NIFTY", res["underlying"])

	groups := res["expiries"].([]interface{})
	require.Len(t, groups, 1)
	nearest := groups[0].(map[string]interface{})
	assert.Equal(t, "2099-12-23", nearest["expiry"])
	assert.Len(t, nearest["calls"], 1)
	assert.Len(t, nearest["puts"], 0)

	out, err = execute(t, dir, "instruments", "search", "24000", "--all", "--json")
	require.NoError(t, err)
	assert.Len(t, decode(t, out)["expiries"], 2)
}

func TestInstrumentsSearchInfersSensex(t *testing.T) {
	b := newBackend(t)
	out, err := execute(t, configDir(t, b.URL), "instruments", "search", "80000")
	require.NoError(t, err)
	assert.Contains(t, out, "SENSEX 80000 CE 24 DEC 99")
	assert.NotContains(t, out, "NIFTY")
}

func TestCalcAutoPrice(t *testing.T) {
	dir := configDir(t, "http://localhost:8000")

	out, err := execute(t, dir, "calc", "--ltp", "100", "--balance", "100000", "--json")
	require.NoError(t, err)
	v := decode(t, out)
	assert.Equal(t, "103", v["entry"])
	assert.Equal(t, "108", v["target"])
	assert.Equal(t, "83", v["stop_loss"])
	assert.Equal(t, "1500", v["risk"])
	assert.Equal(t, "auto", v["mode"])

	m := v["margin"].(map[string]interface{})
	assert.Equal(t, "7725", m["Capital"])
	assert.EqualValues(t, 12, m["MaxLots"])
	assert.Len(t, m["PnL"], 10)
}

func TestCalcManualLevelsAndZeroBalance(t *testing.T) {
	dir := configDir(t, "http://localhost:8000")

	out, err := execute(t, dir, "calc", "--ltp", "100", "--entry", "99", "--lots", "3", "--json")
	require.NoError(t, err)
	v := decode(t, out)
	assert.Equal(t, "manual", v["mode"])
	assert.Equal(t, "99", v["entry"])
	assert.EqualValues(t, 225, v["quantity"])
	assert.Nil(t, v["margin"])
	assert.NotEmpty(t, v["notice"])
}

func TestCalcRejectsGarbage(t *testing.T) {
	dir := configDir(t, "http://localhost:8000")
	_, err := execute(t, dir, "calc", "--ltp", "abc")
	assert.Error(t, err)
	_, err = execute(t, dir, "calc", "--balance", "10")
	assert.Error(t, err)
}

func TestGTTPlaceAndModify(t *testing.T) {
	b := newBackend(t)
	dir := configDir(t, b.URL)

	out, err := execute(t, dir, "gtt", "place", "NIFTY 24000 CE 30 DEC 99", "--ltp", "100", "--balance", "100000")
	require.NoError(t, err)
	assert.Contains(t, out, "Dry run")
	assert.Empty(t, b.forms)

	out, err = execute(t, dir, "gtt", "place", "NSE_FO|1", "--ltp", "100", "--yes", "--json")
	require.NoError(t, err)
	assert.Equal(t, "G-42", decode(t, out)["gtt_order_id"])
	require.Len(t, b.forms, 1)
	assert.Equal(t, map[string]string{
		"path":             "/place-gtt",
		"instrument_token": "NSE_FO|1",
		"quantity":         "75",
		"entry_price":      "103",
		"target_price":     "108",
		"stoploss_price":   "83",
	}, b.forms[0])

	_, err = execute(t, dir, "gtt", "modify", "G-42", "--quantity", "150")
	assert.Error(t, err)

	_, err = execute(t, dir, "gtt", "modify", "G-42", "--quantity", "150", "--stop-loss", "80")
	require.NoError(t, err)
	require.Len(t, b.forms, 2)
	assert.Equal(t, "80", b.forms[1]["stoploss_price"])
	assert.Equal(t, "true", b.forms[1]["modify_stoploss"])
	assert.NotContains(t, b.forms[1], "entry_price")
}
