package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-sync/internal/series"
	"market-sync/internal/syncer"
)

const priceDoc = `{"stat":"OK","data5":[["2330","TSMC","1,000","1","1","330.5","335","329","331.5","",""]]}`

func exchangeServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/price" && r.URL.Query().Get("date") == "20200110" {
			fmt.Fprint(w, priceDoc)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, base string) string {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`
log:
  level: error
store:
  driver: sqlite
  sqlite:
    path: %s
sync:
  count: 1
sources:
  http:
    max_retries: 0
    per_minute: 0
  twse:
    enabled: true
    price_urls: ["%s/price?date={date}"]
    flow_urls: ["%s/flow?date={date}"]
  treasury:
    enabled: false
  html: []
metrics:
  enabled: false
`, filepath.Join(dir, "market.db"), base, base)
	path := filepath.Join(dir, "marketsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func runJSON(t *testing.T, args ...string) (*syncer.Report, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--format", "json"}, args...))
	err := cmd.Execute()

	var rep syncer.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &rep), out.String())
	return &rep, err
}

func TestWalkCommand_EndToEnd(t *testing.T) {
	srv := exchangeServer(t)
	cfgPath := writeConfig(t, srv.URL)

	rep, err := runJSON(t, "-c", cfgPath, "walk", "--date", "20200110")
	require.NoError(t, err)
	assert.Equal(t, []string{"2020-01-10", "2020-01-09"}, rep.Dates)
	assert.Equal(t, 1, rep.Counts["2330"].Inserted)
	// flow for both days and price for the 9th had nothing
	assert.Len(t, rep.Unavailable, 3)

	rep, err = runJSON(t, "-c", cfgPath, "walk", "--date", "20200110", "--count", "0")
	require.NoError(t, err)
	assert.Equal(t, []string{"2020-01-10"}, rep.Dates)
	assert.Equal(t, 0, rep.Counts["2330"].Inserted)
	assert.Equal(t, 1, rep.Counts["2330"].Skipped)
}

func TestSourcesCommand_NothingConfigured(t *testing.T) {
	srv := exchangeServer(t)
	cfgPath := writeConfig(t, srv.URL)

	rep, err := runJSON(t, "-c", cfgPath, "sources")
	require.NoError(t, err)
	assert.NotEmpty(t, rep.PassID)
	assert.Empty(t, rep.Counts)
}

func TestWalkCommand_MissingConfig(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"-c", filepath.Join(t.TempDir(), "nope.yaml"), "walk"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, ExitCode(err))
}

func TestWalkCommand_StoreDownAtStartup(t *testing.T) {
	t.Setenv("MARKETSYNC_STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://u@127.0.0.1:1/db?sslmode=disable&connect_timeout=2")

	for _, args := range [][]string{
		{"walk", "--date", "20200110", "--count", "0"},
		{"sources"},
	} {
		cmd := NewRootCommand()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(append([]string{"--log-level", "error"}, args...))

		err := cmd.Execute()
		require.Error(t, err, args[0])
		assert.Equal(t, ExitStoreDown, ExitCode(err), args[0])
		assert.ErrorIs(t, err, series.ErrStoreUnreachable)
	}
}
