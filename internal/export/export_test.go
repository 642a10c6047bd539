package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/syndicate/internal/workflow"
)

func sampleSession() *workflow.SyncSession {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sess := &workflow.SyncSession{
		ID:           "sess-1",
		StartTime:    base,
		EndTime:      base.Add(5 * time.Second),
		TotalRecords: 3,
	}
	sess.Append(workflow.SyncResult{
		SourceID:      "mls-100",
		Label:         "12 Oak Street",
		Status:        workflow.StatusSuccess,
		DestinationID: "dest-8412",
		Timestamp:     base.Add(1 * time.Second),
	})
	sess.Append(workflow.SyncResult{
		SourceID:  "mls-101",
		Label:     "7 Pine Avenue",
		Status:    workflow.StatusSkipped,
		Message:   "already synced",
		Timestamp: base.Add(2 * time.Second),
	})
	sess.Append(workflow.SyncResult{
		SourceID:  "mls-102",
		Label:     "3 Elm Court",
		Status:    workflow.StatusFailed,
		Message:   "missing fields: CITY, PRICE",
		Timestamp: base.Add(3 * time.Second),
	})
	return sess
}

func golden(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestWriteResultsGolden(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, sampleSession()))
	golden(t).Assert(t, "results", buf.Bytes())
}

func TestWriteSummaryGolden(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, sampleSession()))
	golden(t).Assert(t, "summary", buf.Bytes())
}

func TestWriteResultsEmptySession(t *testing.T) {
	var buf bytes.Buffer
	sess := &workflow.SyncSession{ID: "sess-2"}
	require.NoError(t, WriteResults(&buf, sess))

	// Header only; zero times render empty, not as the epoch.
	assert.Equal(t, "source_id,label,status,message,timestamp\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteSummary(&buf, sess))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "sess-2,,,0,0,0,0", lines[1])
}

func TestStampConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	in := time.Date(2026, 3, 1, 12, 0, 0, 0, loc)
	assert.Equal(t, "2026-03-01T10:00:00Z", stamp(in))
}
