package document

import "fmt"

// StreamError reports a violation of the document ordering invariants.
type StreamError struct {
	Index   int    // position of the offending document in the stream
	Message string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("document stream invalid at index %d: %s", e.Index, e.Message)
}

// ValidateStream checks the ordering invariants over a single run's document
// stream: exactly one RunStart first, Descriptors before their Events,
// seq_num strictly increasing from 1, and RunStop (if present) last.
//
// A stream without a RunStop is accepted: a crash may truncate the stream
// before the stop document, and replay tooling still needs to validate the
// prefix that was persisted.
func ValidateStream(docs []Document) error {
	if len(docs) == 0 {
		return &StreamError{Index: 0, Message: "empty stream"}
	}

	start, ok := docs[0].(*RunStart)
	if !ok {
		return &StreamError{Index: 0, Message: fmt.Sprintf("first document is %s, want %s", docs[0].Kind(), KindRunStart)}
	}
	runID := start.UID

	descriptors := make(map[string]bool)
	var lastSeq int64
	stopped := false

	for i, doc := range docs[1:] {
		idx := i + 1
		if stopped {
			return &StreamError{Index: idx, Message: "document after run_stop"}
		}
		if doc.Run() != runID {
			return &StreamError{Index: idx, Message: fmt.Sprintf("document belongs to run %s, stream is run %s", doc.Run(), runID)}
		}

		switch d := doc.(type) {
		case *RunStart:
			return &StreamError{Index: idx, Message: "second run_start"}
		case *Descriptor:
			descriptors[d.UID] = true
		case *Event:
			if !descriptors[d.Descriptor] {
				return &StreamError{Index: idx, Message: fmt.Sprintf("event references unknown descriptor %s", d.Descriptor)}
			}
			if d.SeqNum != lastSeq+1 {
				return &StreamError{Index: idx, Message: fmt.Sprintf("seq_num %d, want %d", d.SeqNum, lastSeq+1)}
			}
			lastSeq = d.SeqNum
		case *RunStop:
			stopped = true
		}
	}
	return nil
}
