package cli

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-sync/internal/series"
	"market-sync/internal/syncer"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, ExitCode(nil))
	assert.Equal(t, ExitCommandError, ExitCode(errors.New("flag")))

	down := passError(fmt.Errorf("ping: %w", series.ErrStoreUnreachable))
	assert.Equal(t, ExitStoreDown, ExitCode(down))
	assert.ErrorIs(t, down, series.ErrStoreUnreachable)

	assert.Equal(t, ExitStoreDown, ExitCode(setupError(fmt.Errorf("store: %w", series.ErrStoreUnreachable))))
	assert.Equal(t, ExitCommandError, ExitCode(setupError(errors.New("bad yaml"))))

	assert.Equal(t, ExitPassFailed, ExitCode(passError(errors.New("boom"))))
	assert.Equal(t, ExitPassFailed, ExitCode(fmt.Errorf("wrapped: %w", passError(errors.New("boom")))))
}

func TestWriteReport_Text(t *testing.T) {
	rep := syncer.NewReport("0f0e0d0c-aaaa")
	rep.Dates = []string{"2020-01-10", "2020-01-09"}
	rep.Counts["2330"] = series.Counts{Inserted: 2, Skipped: 1}
	rep.Counts["USTY"] = series.Counts{Updated: 1, Failed: 1}
	rep.SchemaFailed["DXY"] = "alter: disk full"
	rep.Unavailable = []string{"twse_flow@2020-01-09"}
	rep.Rejected["twse_price"] = 2

	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, "text", rep))
	out := buf.String()

	assert.Contains(t, out, "pass 0f0e0d0c-aaaa")
	assert.Contains(t, out, "dates 2020-01-09 .. 2020-01-10 (2)")
	assert.Regexp(t, `2330\s+2\s+0\s+1\s+0`, out)
	assert.Regexp(t, `USTY\s+0\s+1\s+0\s+1`, out)
	assert.Contains(t, out, "schema failed DXY: alter: disk full")
	assert.Contains(t, out, "unavailable 1 document(s)")
	assert.Contains(t, out, "rejected 2 malformed row(s) from twse_price")

	buf.Reset()
	require.NoError(t, writeReport(&buf, "text", nil))
	assert.Empty(t, buf.String())
}
