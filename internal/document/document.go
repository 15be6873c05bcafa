package document

import "time"

// Kind identifies a document variant on the wire and in storage.
type Kind string

const (
	KindRunStart   Kind = "run_start"
	KindDescriptor Kind = "descriptor"
	KindEvent      Kind = "event"
	KindRunStop    Kind = "run_stop"
)

// ExitStatus is the terminal status recorded on a RunStop.
type ExitStatus string

const (
	ExitSuccess ExitStatus = "success"
	ExitAbort   ExitStatus = "abort"
	ExitFail    ExitStatus = "fail"
)

// Document is implemented by the four concrete document types.
// Kind dispatch is explicit; subscribers switch on Kind(), never reflect.
type Document interface {
	// Kind returns the document variant.
	Kind() Kind
	// DocumentUID returns the unique id of this document.
	DocumentUID() string
	// Run returns the id of the run this document belongs to.
	Run() string
}

// DataKey describes one named field of an event stream.
// Shape is nil for scalars; Source identifies the producing device signal.
type DataKey struct {
	Dtype  string `json:"dtype"`
	Shape  []int  `json:"shape,omitempty"`
	Source string `json:"source"`
}

// RunStart opens a run. Its UID doubles as the run id referenced by every
// subsequent document of the run.
type RunStart struct {
	UID      string         `json:"uid"`
	Time     time.Time      `json:"time"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (d *RunStart) Kind() Kind          { return KindRunStart }
func (d *RunStart) DocumentUID() string { return d.UID }
func (d *RunStart) Run() string         { return d.UID }

// Descriptor declares the data keys of one event stream within a run.
// Events reference their descriptor by UID.
type Descriptor struct {
	UID      string             `json:"uid"`
	RunID    string             `json:"run_id"`
	Name     string             `json:"name"`
	Time     time.Time          `json:"time"`
	DataKeys map[string]DataKey `json:"data_keys"`
}

func (d *Descriptor) Kind() Kind          { return KindDescriptor }
func (d *Descriptor) DocumentUID() string { return d.UID }
func (d *Descriptor) Run() string         { return d.RunID }

// Event is one row of readings. SeqNum starts at 1 and increases strictly
// within a run, across all of the run's event streams.
type Event struct {
	UID        string               `json:"uid"`
	RunID      string               `json:"run_id"`
	Descriptor string               `json:"descriptor"`
	Time       time.Time            `json:"time"`
	SeqNum     int64                `json:"seq_num"`
	Data       map[string]any       `json:"data"`
	Timestamps map[string]time.Time `json:"timestamps"`
}

func (d *Event) Kind() Kind          { return KindEvent }
func (d *Event) DocumentUID() string { return d.UID }
func (d *Event) Run() string         { return d.RunID }

// RunStop seals a run. NumEvents counts emitted events per stream name.
type RunStop struct {
	UID        string           `json:"uid"`
	RunID      string           `json:"run_id"`
	Time       time.Time        `json:"time"`
	ExitStatus ExitStatus       `json:"exit_status"`
	Reason     string           `json:"reason,omitempty"`
	NumEvents  map[string]int64 `json:"num_events,omitempty"`
}

func (d *RunStop) Kind() Kind          { return KindRunStop }
func (d *RunStop) DocumentUID() string { return d.UID }
func (d *RunStop) Run() string         { return d.RunID }
