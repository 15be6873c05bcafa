package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/seqlab/beamrun/internal/document"
)

// traceSnapshot is the golden-file form of a scenario execution.
//
// Wall-clock fields (document times, reading timestamps) are omitted:
// reading timestamps come from the simulated devices' real clocks, so
// they vary run to run even under the deterministic harness. Everything
// that remains is byte-stable.
type traceSnapshot struct {
	Scenario string           `json:"scenario"`
	RunID    string           `json:"run_id"`
	Error    string           `json:"error,omitempty"`
	Trace    []map[string]any `json:"trace"`
}

// Snapshot renders a result as indented JSON for golden comparison.
func Snapshot(name string, res *Result) ([]byte, error) {
	snap := traceSnapshot{
		Scenario: name,
		RunID:    res.RunID,
		Trace:    make([]map[string]any, 0, len(res.Documents)),
	}
	if res.Err != nil {
		snap.Error = res.Err.Error()
	}
	for _, doc := range res.Documents {
		snap.Trace = append(snap.Trace, traceLine(doc))
	}
	return json.MarshalIndent(snap, "", "  ")
}

func traceLine(doc document.Document) map[string]any {
	switch d := doc.(type) {
	case *document.RunStart:
		line := map[string]any{
			"kind": string(d.Kind()),
			"uid":  d.UID,
		}
		if d.Metadata != nil {
			line["metadata"] = d.Metadata
		}
		return line

	case *document.Descriptor:
		keys := make(map[string]any, len(d.DataKeys))
		for name, dk := range d.DataKeys {
			key := map[string]any{
				"dtype":  dk.Dtype,
				"source": dk.Source,
			}
			if dk.Shape != nil {
				key["shape"] = dk.Shape
			}
			keys[name] = key
		}
		return map[string]any{
			"kind":      string(d.Kind()),
			"uid":       d.UID,
			"run_id":    d.RunID,
			"stream":    d.Name,
			"data_keys": keys,
		}

	case *document.Event:
		return map[string]any{
			"kind":       string(d.Kind()),
			"uid":        d.UID,
			"run_id":     d.RunID,
			"descriptor": d.Descriptor,
			"seq_num":    d.SeqNum,
			"data":       d.Data,
		}

	case *document.RunStop:
		line := map[string]any{
			"kind":        string(d.Kind()),
			"uid":         d.UID,
			"run_id":      d.RunID,
			"exit_status": string(d.ExitStatus),
			"num_events":  d.NumEvents,
		}
		if d.Reason != "" {
			line["reason"] = d.Reason
		}
		return line

	default:
		return map[string]any{"kind": string(doc.Kind()), "uid": doc.DocumentUID()}
	}
}

// RunWithGolden executes a scenario and compares its trace against the
// golden file testdata/golden/{scenario.Name}.golden. Regenerate golden
// files with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario) *Result {
	t.Helper()

	res := Run(s)
	data, err := Snapshot(s.Name, res)
	if err != nil {
		t.Fatalf("snapshot %s: %v", s.Name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, s.Name, data)
	return res
}
