package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/seqlab/beamrun/internal/document"
)

// RunSummary is one row of a run listing.
type RunSummary struct {
	RunID      string
	PlanName   string
	Start      time.Time
	ExitStatus document.ExitStatus // empty when the run has no RunStop yet
	NumEvents  int64
}

// ReplayRun returns every document of a run in emission order.
// A run id with no documents returns an error, not an empty stream.
func (b *Broker) ReplayRun(ctx context.Context, runID string) ([]document.Document, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT kind, payload
		FROM documents
		WHERE run_id = ?
		ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("replay run %s: %w", runID, err)
	}
	defer rows.Close()

	var docs []document.Document
	for rows.Next() {
		var kind, payload string
		if err := rows.Scan(&kind, &payload); err != nil {
			return nil, fmt.Errorf("replay run %s: %w", runID, err)
		}
		doc, err := document.Decode(document.Kind(kind), []byte(payload))
		if err != nil {
			return nil, fmt.Errorf("replay run %s: %w", runID, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("replay run %s: %w", runID, err)
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("replay run %s: no documents", runID)
	}
	return docs, nil
}

// ListRuns returns a summary of every recorded run in start order.
func (b *Broker) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT s.payload,
		       COALESCE(e.payload, ''),
		       (SELECT COUNT(*) FROM documents ev
		        WHERE ev.run_id = s.run_id AND ev.kind = 'event')
		FROM documents s
		LEFT JOIN documents e
		       ON e.run_id = s.run_id AND e.kind = 'run_stop'
		WHERE s.kind = 'run_start'
		ORDER BY s.seq
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var startPayload, stopPayload string
		var numEvents int64
		if err := rows.Scan(&startPayload, &stopPayload, &numEvents); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}

		doc, err := document.Decode(document.KindRunStart, []byte(startPayload))
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		start := doc.(*document.RunStart)

		summary := RunSummary{
			RunID:     start.UID,
			Start:     start.Time,
			NumEvents: numEvents,
		}
		if name, ok := start.Metadata["plan_name"].(string); ok {
			summary.PlanName = name
		}
		if stopPayload != "" {
			doc, err := document.Decode(document.KindRunStop, []byte(stopPayload))
			if err != nil {
				return nil, fmt.Errorf("list runs: %w", err)
			}
			summary.ExitStatus = doc.(*document.RunStop).ExitStatus
		}
		runs = append(runs, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// LastRun returns the id of the most recently started run, or an error if
// the log is empty.
func (b *Broker) LastRun(ctx context.Context) (string, error) {
	var runID string
	err := b.db.QueryRowContext(ctx, `
		SELECT run_id
		FROM documents
		WHERE kind = 'run_start'
		ORDER BY seq DESC
		LIMIT 1
	`).Scan(&runID)
	if err != nil {
		return "", fmt.Errorf("last run: %w", err)
	}
	return runID, nil
}
