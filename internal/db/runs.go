package db

import (
	"fmt"
	"strings"
	"time"
)

// RunRecord is one transmission run as stored in the runs table.
type RunRecord struct {
	RunID        string
	Started      time.Time
	Frames       int
	Packets      int64
	Bytes        int64
	Elapsed      time.Duration
	Destinations []string
	Continuous   bool
	PayloadLen   int
	StreamBytes  int
	// Error is the message of the error that ended the run, if any.
	Error string
}

func (r *RunRecord) String() string {
	return fmt.Sprintf("%s %s frames=%d packets=%d bytes=%d elapsed=%s to %s",
		r.RunID, r.Started.Format(time.RFC3339), r.Frames, r.Packets, r.Bytes,
		r.Elapsed.Round(time.Millisecond), strings.Join(r.Destinations, ","))
}

// RecordRun inserts r. Run IDs are unique.
func (db *DB) RecordRun(r RunRecord) error {
	if r.RunID == "" {
		return fmt.Errorf("run record has no id")
	}
	continuous := 0
	if r.Continuous {
		continuous = 1
	}
	_, err := db.Exec(`
		INSERT INTO runs (
			run_id, started_unix_ns, frames, packets, bytes, elapsed_ns,
			destinations, continuous, error, payload_len, stream_bytes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Started.UnixNano(), r.Frames, r.Packets, r.Bytes, int64(r.Elapsed),
		strings.Join(r.Destinations, ","), continuous, r.Error, r.PayloadLen, r.StreamBytes,
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", r.RunID, err)
	}
	return nil
}

// Runs returns up to limit runs, newest first. A limit of zero or less
// returns every run.
func (db *DB) Runs(limit int) ([]RunRecord, error) {
	query := `
		SELECT run_id, started_unix_ns, frames, packets, bytes, elapsed_ns,
			destinations, continuous, error, payload_len, stream_bytes
		FROM runs
		ORDER BY started_unix_ns DESC, run_id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			r            RunRecord
			startedNs    int64
			elapsedNs    int64
			destinations string
			continuous   int
		)
		if err := rows.Scan(&r.RunID, &startedNs, &r.Frames, &r.Packets, &r.Bytes, &elapsedNs,
			&destinations, &continuous, &r.Error, &r.PayloadLen, &r.StreamBytes); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Started = time.Unix(0, startedNs)
		r.Elapsed = time.Duration(elapsedNs)
		if destinations != "" {
			r.Destinations = strings.Split(destinations, ",")
		}
		r.Continuous = continuous != 0
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
