package session

import (
	"fmt"
	"strings"

	"github.com/sprite-ai/redline/internal/model"
)

// Mode says whether a candidate proposes adding or rejecting spans.
type Mode int

const (
	ModeAdd Mode = iota
	ModeReject
)

func (m Mode) String() string {
	switch m {
	case ModeAdd:
		return "add"
	case ModeReject:
		return "reject"
	default:
		return "unknown"
	}
}

// MarshalText encodes the mode as its name.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText decodes a mode name.
func (m *Mode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "add":
		*m = ModeAdd
	case "reject":
		*m = ModeReject
	default:
		return fmt.Errorf("unknown mode %q", string(b))
	}
	return nil
}

// Outcome reports what a gesture or resolution did.
type Outcome int

const (
	// OutcomeIgnored means the input was ill-formed or not allowed in the
	// current state; nothing changed.
	OutcomeIgnored Outcome = iota
	// OutcomeApplied means the span set changed.
	OutcomeApplied
	// OutcomeCandidate means a disambiguation candidate is now open.
	OutcomeCandidate
	// OutcomeCancelled means an open candidate was closed without change.
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeApplied:
		return "applied"
	case OutcomeCandidate:
		return "candidate"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Choice closes an open candidate.
type Choice int

const (
	ChoiceCancel Choice = iota
	ChoiceOne
	ChoiceAll
	// ChoiceDismiss is an outside click; it behaves like ChoiceCancel.
	ChoiceDismiss
)

func (c Choice) String() string {
	switch c {
	case ChoiceCancel:
		return "cancel"
	case ChoiceOne:
		return "one"
	case ChoiceAll:
		return "all"
	case ChoiceDismiss:
		return "dismiss"
	default:
		return "unknown"
	}
}

// ParseChoice parses a choice name.
func ParseChoice(s string) (Choice, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cancel":
		return ChoiceCancel, nil
	case "one":
		return ChoiceOne, nil
	case "all":
		return ChoiceAll, nil
	case "dismiss":
		return ChoiceDismiss, nil
	}
	return ChoiceCancel, fmt.Errorf("unknown choice %q", s)
}

// Anchor is the screen position a gesture happened at. Surfaces use it to
// place the disambiguation prompt.
type Anchor struct {
	Top  int `json:"top"`
	Left int `json:"left"`
}

// Candidate is an unresolved add/reject request awaiting a one-or-all
// decision.
type Candidate struct {
	Mode   Mode       `json:"mode"`
	Span   model.Span `json:"span"`
	Count  int        `json:"count"`
	Anchor Anchor     `json:"anchor"`
}

// Prompt returns the question shown to the user.
func (c Candidate) Prompt() string {
	return fmt.Sprintf("Found %d instances of %q.", c.Count, c.Span.Text)
}

// Gesture is a click or drag over plain text.
type Gesture struct {
	// Selection is the dragged text. When empty the gesture is a click at
	// Offset.
	Selection string
	// Offset is the character offset under the pointer.
	Offset int
	// OnHighlight is set when the gesture started on a highlighted span.
	OnHighlight bool
	Anchor      Anchor
}

// State is a consistent snapshot of a session.
type State struct {
	Spans             []model.Span `json:"spans"`
	Candidate         *Candidate   `json:"candidate,omitempty"`
	EditMode          bool         `json:"edit_mode"`
	UndoAvailable     bool         `json:"undo_available"`
	LastRejectedCount int          `json:"last_rejected_count"`
}

// UndoNotice is the message shown while a rejection can be undone.
func UndoNotice(n int) string {
	return fmt.Sprintf("%d item(s) removed.", n)
}
