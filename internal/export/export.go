// Package export renders persisted sync sessions as delimited text for
// spreadsheet review and downstream reporting.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/roach88/syndicate/internal/workflow"
)

var resultsHeader = []string{"source_id", "label", "status", "message", "timestamp"}

var summaryHeader = []string{"session_id", "start_time", "end_time", "total", "posted", "skipped", "failed"}

// WriteResults writes one row per record result, in session order.
func WriteResults(w io.Writer, sess *workflow.SyncSession) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(resultsHeader); err != nil {
		return fmt.Errorf("write results header: %w", err)
	}
	for _, r := range sess.Results {
		row := []string{
			r.SourceID,
			r.Label,
			string(r.Status),
			r.Message,
			stamp(r.Timestamp),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write result row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummary writes a single-row roll-up of the session counters.
func WriteSummary(w io.Writer, sess *workflow.SyncSession) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(summaryHeader); err != nil {
		return fmt.Errorf("write summary header: %w", err)
	}
	row := []string{
		sess.ID,
		stamp(sess.StartTime),
		stamp(sess.EndTime),
		strconv.Itoa(sess.TotalRecords),
		strconv.Itoa(sess.Posted),
		strconv.Itoa(sess.Skipped),
		strconv.Itoa(sess.Failed),
	}
	if err := cw.Write(row); err != nil {
		return fmt.Errorf("write summary row: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

// stamp renders timestamps in UTC so exports are stable across machines.
func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
