package editor

import (
	"errors"

	"github.com/paulmach/orb"

	"github.com/samirrijal/shotengai/internal/core/geometry"
)

var (
	ErrSessionActive = errors.New("an edit session is already open")
	ErrSaving        = errors.New("edit session is saving")
	ErrNoSession     = errors.New("no edit session is open")
	ErrNotDrawing    = errors.New("operation requires a drawing session")
	ErrVertexIndex   = errors.New("vertex index out of range")
	ErrStaleRefresh  = errors.New("feature store kept changing during refresh")
)

// State is the lifecycle position of an edit session.
type State int

const (
	Idle State = iota
	Drawing
	EditingExisting
	Saving
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Drawing:
		return "drawing"
	case EditingExisting:
		return "editing_existing"
	case Saving:
		return "saving"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Mode tells what a commit will do with the working vertices.
type Mode int

const (
	// ModeCreate draws a new feature, possibly from several arcs.
	ModeCreate Mode = iota
	// ModeReshape edits the flattened vertex list of an existing feature.
	ModeReshape
	// ModeExtend draws one new arc appended to an existing feature.
	ModeExtend
)

func (m Mode) String() string {
	switch m {
	case ModeCreate:
		return "create"
	case ModeReshape:
		return "reshape"
	case ModeExtend:
		return "extend"
	default:
		return "unknown"
	}
}

// session is the one open unit of work. It is owned by an Editor and never
// shared.
type session struct {
	state    State
	mode     Mode
	targetID string
	target   geometry.MultiLine
	// arcs holds the finished arcs of a ModeCreate drawing.
	arcs    []orb.LineString
	working orb.LineString
	// resume is the state to return to when a save fails.
	resume State
}

// hiddenID is the feature whose stored geometry the view must not draw while
// its reshaped copy is on screen. It is derived from state so that every exit
// from the session restores visibility.
func (s *session) hiddenID() string {
	if s == nil || s.mode != ModeReshape {
		return ""
	}
	if s.state == EditingExisting || s.state == Saving {
		return s.targetID
	}
	return ""
}

func (s *session) excludeID() string {
	if s == nil {
		return ""
	}
	return s.targetID
}

// result assembles the geometry a commit would send.
func (s *session) result() (geometry.MultiLine, error) {
	switch s.mode {
	case ModeCreate:
		segs := make(geometry.MultiLine, 0, len(s.arcs)+1)
		for _, a := range s.arcs {
			segs = append(segs, cloneLine(a))
		}
		if len(s.working) > 0 {
			if len(s.working) < 2 {
				return nil, geometry.ErrInsufficientVertices
			}
			segs = append(segs, cloneLine(s.working))
		}
		if len(segs) == 0 {
			return nil, geometry.ErrInsufficientVertices
		}
		return segs, segs.Validate()
	case ModeReshape:
		m := geometry.MultiLine{cloneLine(s.working)}
		return m, m.Validate()
	case ModeExtend:
		seg := geometry.SingleLine(cloneLine(s.working))
		if err := seg.Validate(); err != nil {
			return nil, err
		}
		return geometry.Append(s.target, seg), nil
	}
	return nil, geometry.ErrUnsupportedGeometry
}

// Snapshot is a read-only copy of the editor's session for rendering.
type Snapshot struct {
	State State
	Mode  Mode
	// TargetID is the feature being reshaped or extended.
	TargetID string
	// Arcs are the finished arcs of a multi-arc drawing.
	Arcs geometry.MultiLine
	// Working is the vertex list under edit.
	Working geometry.SingleLine
	// HiddenFeatureID is the stored feature the view should not draw.
	HiddenFeatureID string
}

func (s *session) snapshot() Snapshot {
	if s == nil {
		return Snapshot{State: Idle}
	}
	arcs := make(geometry.MultiLine, len(s.arcs))
	for i, a := range s.arcs {
		arcs[i] = cloneLine(a)
	}
	return Snapshot{
		State:           s.state,
		Mode:            s.mode,
		TargetID:        s.targetID,
		Arcs:            arcs,
		Working:         geometry.SingleLine(cloneLine(s.working)),
		HiddenFeatureID: s.hiddenID(),
	}
}

func cloneLine(ls orb.LineString) orb.LineString {
	out := make(orb.LineString, len(ls))
	copy(out, ls)
	return out
}
