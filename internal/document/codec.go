package document

import (
	"encoding/json"
	"fmt"
)

// Decode rehydrates a document from its stored canonical JSON payload.
// The inverse of MarshalCanonical for broker and replay use.
func Decode(kind Kind, payload []byte) (Document, error) {
	var doc Document
	switch kind {
	case KindRunStart:
		doc = &RunStart{}
	case KindDescriptor:
		doc = &Descriptor{}
	case KindEvent:
		doc = &Event{}
	case KindRunStop:
		doc = &RunStop{}
	default:
		return nil, fmt.Errorf("decode: unknown document kind %q", kind)
	}
	if err := json.Unmarshal(payload, doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return doc, nil
}
