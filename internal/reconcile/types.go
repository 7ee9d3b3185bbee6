package reconcile

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind distinguishes concrete frames from window sentinels.
type Kind uint8

const (
	// Missing means no value was supplied.
	Missing Kind = iota
	// Frame is a concrete frame index.
	Frame
	// BeforeWindow means the event happened before acquisition started.
	BeforeWindow
	// AfterWindow means the event happened after acquisition ended.
	AfterWindow
)

// EventValue is one event timing.
type EventValue struct {
	Kind  Kind
	Frame int
}

// At returns a concrete frame value.
func At(frame int) EventValue { return EventValue{Kind: Frame, Frame: frame} }

// Sentinel values.
var (
	Before = EventValue{Kind: BeforeWindow}
	After  = EventValue{Kind: AfterWindow}
)

// Concrete reports whether v is a frame index.
func (v EventValue) Concrete() bool { return v.Kind == Frame }

// Present reports whether any value was supplied.
func (v EventValue) Present() bool { return v.Kind != Missing }

// Sentinel reports whether v is a window sentinel.
func (v EventValue) Sentinel() bool { return v.Kind == BeforeWindow || v.Kind == AfterWindow }

func (v EventValue) String() string {
	switch v.Kind {
	case Frame:
		return strconv.Itoa(v.Frame)
	case BeforeWindow:
		return "before"
	case AfterWindow:
		return "after"
	default:
		return ""
	}
}

// rank orders values along the time axis with sentinels at the extremes.
func (v EventValue) rank() float64 {
	switch v.Kind {
	case BeforeWindow:
		return -1e18
	case AfterWindow:
		return 1e18
	default:
		return float64(v.Frame)
	}
}

// ParseEventValue parses a score table cell. Blank and NA are missing;
// "before" and "after" are sentinels, case-insensitive.
func ParseEventValue(s string) (EventValue, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "na", "nan":
		return EventValue{}, nil
	case "before":
		return Before, nil
	case "after":
		return After, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) || f < 0 {
		return EventValue{}, fmt.Errorf("invalid event value %q", s)
	}
	return At(int(f)), nil
}

// Event names one of the three scored mitotic events.
type Event int

const (
	NEBD Event = iota
	CongS
	CongE
)

// Events lists the events in temporal order.
var Events = [3]Event{NEBD, CongS, CongE}

func (e Event) String() string {
	switch e {
	case NEBD:
		return "NEBD"
	case CongS:
		return "CongS"
	case CongE:
		return "CongE"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// ParseEvent parses an event name, case-insensitive.
func ParseEvent(s string) (Event, error) {
	for _, e := range Events {
		if strings.EqualFold(strings.TrimSpace(s), e.String()) {
			return e, nil
		}
	}
	return 0, fmt.Errorf("unknown event %q", s)
}

// Provenance records where a final event value came from.
type Provenance string

const (
	Human             Provenance = "human"
	Fitted            Provenance = "fitted"
	Reconciled        Provenance = "reconciled"
	ReconciledPending Provenance = "reconciled-pending"
	None              Provenance = "none"
)

// Key identifies a cell across movies.
type Key struct {
	MovieID string
	CellID  string
}

func (k Key) String() string {
	if k.MovieID == "" {
		return k.CellID
	}
	return k.MovieID + "/" + k.CellID
}

// EventScore is a set of event timings for one cell. PairID, when set, names
// the spindle's track pair and takes precedence over CellID.
type EventScore struct {
	MovieID string
	CellID  string
	PairID  string
	Values  [3]EventValue
}

// Key returns the cell key.
func (s EventScore) Key() Key { return Key{MovieID: s.MovieID, CellID: s.CellID} }

// Get returns the value of one event.
func (s EventScore) Get(e Event) EventValue { return s.Values[e] }

// Decision is an explicit external resolution of a divergent event.
type Decision struct {
	MovieID string
	CellID  string
	PairID  string
	Event   Event
	Value   EventValue
}

// Key returns the cell key.
func (d Decision) Key() Key { return Key{MovieID: d.MovieID, CellID: d.CellID} }
