package engine

import (
	"log/slog"
	"time"

	"github.com/seqlab/beamrun/internal/device"
	"github.com/seqlab/beamrun/internal/document"
)

// runState is the bookkeeping for one open run.
type runState struct {
	id string

	// seq stamps event seq_nums, starting at 1 for the first event.
	seq *Clock

	// descriptor ids and data-key-set hashes per stream name. A read
	// producing a different key set under the same stream forces a
	// fresh Descriptor.
	descriptors map[string]string
	descHashes  map[string]string

	numEvents map[string]int64

	// bundle is the open create/save event bundle, nil outside one.
	bundle *eventBundle
}

// eventBundle buffers reads between create and save into one event row.
type eventBundle struct {
	stream     string
	data       map[string]any
	timestamps map[string]time.Time
	keys       map[string]document.DataKey
}

func newEventBundle(stream string) *eventBundle {
	return &eventBundle{
		stream:     stream,
		data:       make(map[string]any),
		timestamps: make(map[string]time.Time),
		keys:       make(map[string]document.DataKey),
	}
}

func (b *eventBundle) add(readings map[string]device.Reading, keys map[string]document.DataKey) {
	for name, r := range readings {
		b.data[name] = r.Value
		b.timestamps[name] = r.Timestamp
	}
	for name, k := range keys {
		b.keys[name] = k
	}
}

// openRun creates the run state and emits RunStart. Metadata is the user
// mapping plus engine-injected keys; user keys win on collision so plans
// can override plan_name for derived scans.
func (e *Engine) openRun(userMD map[string]any) *runState {
	md := map[string]any{
		"plan_name":      e.rootName,
		"engine_version": Version,
	}
	for k, v := range userMD {
		md[k] = v
	}

	r := &runState{
		id:          e.idgen.Generate(),
		seq:         NewClock(),
		descriptors: make(map[string]string),
		descHashes:  make(map[string]string),
		numEvents:   make(map[string]int64),
	}
	e.run = r
	e.lastRunID = r.id

	e.emit(&document.RunStart{
		UID:      r.id,
		Time:     e.now(),
		Metadata: md,
	})
	slog.Info("run opened", "run_id", r.id, "plan", e.rootName)
	return r
}

// closeRun emits RunStop and clears the run state.
func (e *Engine) closeRun(exit document.ExitStatus, reason string) {
	r := e.run
	e.emit(&document.RunStop{
		UID:        e.idgen.Generate(),
		RunID:      r.id,
		Time:       e.now(),
		ExitStatus: exit,
		Reason:     reason,
		NumEvents:  r.numEvents,
	})
	slog.Info("run closed", "run_id", r.id, "exit_status", exit, "events", r.numEvents)
	e.run = nil

	// A checkpoint does not outlive its run: replaying instructions from
	// a sealed run into a later one would attribute their documents to
	// the wrong run. Resume after this point is refused until the plan
	// records a fresh checkpoint.
	e.cp = nil
	e.clearCheckpoint()
}

// emitEvent emits one event row on stream, preceded by a Descriptor when
// the stream's data-key set changed (or was never described).
func (e *Engine) emitEvent(stream string, data map[string]any, timestamps map[string]time.Time, keys map[string]document.DataKey) error {
	r := e.run

	hash, err := document.DataKeysHash(keys)
	if err != nil {
		return err
	}
	if r.descHashes[stream] != hash {
		desc := &document.Descriptor{
			UID:      e.idgen.Generate(),
			RunID:    r.id,
			Name:     stream,
			Time:     e.now(),
			DataKeys: keys,
		}
		e.emit(desc)
		r.descriptors[stream] = desc.UID
		r.descHashes[stream] = hash
	}

	e.emit(&document.Event{
		UID:        e.idgen.Generate(),
		RunID:      r.id,
		Descriptor: r.descriptors[stream],
		Time:       e.now(),
		SeqNum:     r.seq.Next(),
		Data:       data,
		Timestamps: timestamps,
	})
	r.numEvents[stream]++
	return nil
}
