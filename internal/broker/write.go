package broker

import (
	"context"
	"fmt"

	"github.com/seqlab/beamrun/internal/document"
)

// WriteDocument appends one document to the log.
// Uses ON CONFLICT(uid) DO NOTHING for idempotency - a document written
// twice (replayed subscriber, resumed upload) is silently ignored, so the
// log never holds two rows for one uid.
//
// The payload is serialized to canonical JSON per RFC 8785 so stored
// documents are byte-stable and hashable.
func (b *Broker) WriteDocument(ctx context.Context, doc document.Document) error {
	payload, err := document.MarshalCanonical(doc)
	if err != nil {
		return fmt.Errorf("write document: %w", err)
	}

	_, err = b.db.ExecContext(ctx, `
		INSERT INTO documents (uid, run_id, kind, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(uid) DO NOTHING
	`,
		doc.DocumentUID(),
		doc.Run(),
		string(doc.Kind()),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("write document: %w", err)
	}

	return nil
}

// OnDocument implements the engine's Subscriber interface, so a Broker
// can be attached to a run directly. Uses a background context: a
// canceled run context must not lose the documents already emitted.
func (b *Broker) OnDocument(_ document.Kind, doc document.Document) error {
	return b.WriteDocument(context.Background(), doc)
}
