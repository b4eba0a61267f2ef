// Package session implements the redaction edit session: the working set of
// spans for one document, the gestures that add or reject spans, the
// one-or-all disambiguation candidate, and time-boxed undo of rejections.
//
// A session is owned by a single surface and handles one gesture at a time.
// The undo expiry runs on the clock's goroutine, so state is guarded by a
// mutex; a generation counter keeps a stale expiry from clearing a newer
// rejection batch.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sprite-ai/redline/internal/locate"
	"github.com/sprite-ai/redline/internal/logging"
	"github.com/sprite-ai/redline/internal/model"
	"github.com/sprite-ai/redline/internal/render"
)

// DefaultUndoWindow is how long a rejection can be undone.
const DefaultUndoWindow = 5 * time.Second

// Session is the stateful controller for reviewing one document.
type Session struct {
	mu sync.Mutex

	doc   *model.Document
	spans []model.Span

	candidate    *Candidate
	lastRejected []model.Span
	editMode     bool

	undoWindow time.Duration
	clock      Clock
	timer      Timer
	timerGen   uint64
	closed     bool

	onExpire func()
	newID    func() string
	log      zerolog.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithUndoWindow sets how long a rejection stays undoable.
func WithUndoWindow(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.undoWindow = d
		}
	}
}

// WithClock replaces the clock used to schedule undo expiry.
func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithLogger sets the session logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithExpiryHook registers f to run after an undo window lapses. It runs on
// the clock's goroutine, outside the session lock.
func WithExpiryHook(f func()) Option {
	return func(s *Session) { s.onExpire = f }
}

// WithIDGenerator replaces the span ID generator.
func WithIDGenerator(f func() string) Option {
	return func(s *Session) { s.newID = f }
}

// New starts a session over doc seeded with the given spans. Spans without
// an ID are assigned one.
func New(doc *model.Document, spans []model.Span, opts ...Option) *Session {
	s := &Session{
		doc:        doc,
		undoWindow: DefaultUndoWindow,
		clock:      realClock{},
		newID:      uuid.NewString,
		log:        logging.Component("session"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.spans = make([]model.Span, 0, len(spans))
	for _, sp := range spans {
		if sp.ID == "" {
			sp.ID = s.newID()
		}
		s.spans = append(s.spans, sp)
	}
	return s
}

// FromAnalysis starts a session from an analysis result.
func FromAnalysis(a *model.Analysis, opts ...Option) *Session {
	return New(a.Document(), a.Redactions, opts...)
}

// Document returns the document under review.
func (s *Session) Document() *model.Document {
	return s.doc
}

// Spans returns a copy of the active spans in their current order.
func (s *Session) Spans() []model.Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copySpans()
}

// Redactions returns the active spans sorted by start, the list sent to the
// generation service.
func (s *Session) Redactions() []model.Span {
	spans := s.Spans()
	model.SortByStart(spans)
	return spans
}

// Segments renders the active spans over the document.
func (s *Session) Segments() []render.Segment {
	return render.SegmentsRunes(s.doc.Runes(), s.Spans())
}

// SpanByID looks up an active span.
func (s *Session) SpanByID(id string) (model.Span, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sp := range s.spans {
		if sp.ID == id {
			return sp, true
		}
	}
	return model.Span{}, false
}

// SpansAt returns the active spans covering offset, sorted by start.
func (s *Session) SpansAt(offset int) []model.Span {
	s.mu.Lock()
	var out []model.Span
	for _, sp := range s.spans {
		if sp.Contains(offset) {
			out = append(out, sp)
		}
	}
	s.mu.Unlock()
	model.SortByStart(out)
	return out
}

// Candidate returns the open candidate, if any.
func (s *Session) Candidate() (Candidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.candidate == nil {
		return Candidate{}, false
	}
	return *s.candidate, true
}

// LastRejected returns the batch that Undo would restore.
func (s *Session) LastRejected() []model.Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Span, len(s.lastRejected))
	copy(out, s.lastRejected)
	return out
}

// UndoAvailable reports whether a rejection can still be undone.
func (s *Session) UndoAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lastRejected) > 0
}

// EditMode reports whether plain-text gestures add spans.
func (s *Session) EditMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editMode
}

// ToggleEditMode flips edit mode and returns the new value.
func (s *Session) ToggleEditMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editMode = !s.editMode
	return s.editMode
}

// SetEditMode sets edit mode.
func (s *Session) SetEditMode(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editMode = on
}

// State returns a consistent snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Spans:             s.copySpans(),
		EditMode:          s.editMode,
		UndoAvailable:     len(s.lastRejected) > 0,
		LastRejectedCount: len(s.lastRejected),
	}
	if s.candidate != nil {
		c := *s.candidate
		st.Candidate = &c
	}
	return st
}

// Reject handles a click on a highlighted span. When other active spans
// share its text a reject candidate opens; otherwise the span is rejected
// immediately. Reject is available regardless of edit mode.
func (s *Session) Reject(span model.Span, anchor Anchor) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.candidate != nil || !s.isActive(span) {
		return OutcomeIgnored
	}

	count := model.CountText(s.spans, span.Text)
	if count <= 1 {
		s.commitRejection([]model.Span{span})
		return OutcomeApplied
	}

	s.candidate = &Candidate{Mode: ModeReject, Span: span, Count: count, Anchor: anchor}
	s.log.Debug().Str("text", span.Text).Int("count", count).Msg("reject candidate opened")
	return OutcomeCandidate
}

// Add handles a click or drag over plain text in edit mode. A drag is
// located by the first occurrence of the selected text; a click resolves to
// the word under the pointer. When the text occurs more than once an add
// candidate opens; otherwise a MANUAL span is added immediately.
func (s *Session) Add(g Gesture) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.candidate != nil || !s.editMode || g.OnHighlight {
		return OutcomeIgnored
	}

	var (
		occ model.Occurrence
		ok  bool
	)
	if sel := strings.TrimSpace(g.Selection); sel != "" {
		occ, ok = locate.First(s.doc.Text, sel)
	} else {
		occ, ok = locate.WordAtRunes(s.doc.Runes(), g.Offset)
	}
	if !ok {
		return OutcomeIgnored
	}

	span := s.manualSpan(occ)
	count := locate.Count(s.doc.Text, occ.Text)
	if count <= 1 {
		s.spans = append(s.spans, span)
		s.log.Debug().Str("text", span.Text).Int("start", span.Start).Msg("span added")
		return OutcomeApplied
	}

	s.candidate = &Candidate{Mode: ModeAdd, Span: span, Count: count, Anchor: g.Anchor}
	s.log.Debug().Str("text", span.Text).Int("count", count).Msg("add candidate opened")
	return OutcomeCandidate
}

// Resolve closes the open candidate.
func (s *Session) Resolve(choice Choice) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.candidate == nil {
		return OutcomeIgnored
	}
	c := *s.candidate
	s.candidate = nil

	switch choice {
	case ChoiceOne:
		if c.Mode == ModeReject {
			s.commitRejection([]model.Span{c.Span})
		} else {
			s.spans = append(s.spans, c.Span)
		}
		return OutcomeApplied

	case ChoiceAll:
		if c.Mode == ModeReject {
			var batch []model.Span
			for _, sp := range s.spans {
				if sp.SameText(c.Span) {
					batch = append(batch, sp)
				}
			}
			s.commitRejection(batch)
		} else {
			for _, occ := range locate.FindAll(s.doc.Text, c.Span.Text) {
				s.spans = append(s.spans, s.manualSpan(occ))
			}
			s.log.Debug().Str("text", c.Span.Text).Msg("bulk add")
		}
		return OutcomeApplied

	default:
		return OutcomeCancelled
	}
}

// Undo restores the most recent rejection batch if its window has not
// lapsed. It returns the number of spans restored.
func (s *Session) Undo() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || len(s.lastRejected) == 0 {
		return 0
	}
	s.stopTimer()

	n := len(s.lastRejected)
	s.spans = append(s.spans, s.lastRejected...)
	model.SortByStart(s.spans)
	s.lastRejected = nil

	s.log.Debug().Int("restored", n).Msg("undo")
	return n
}

// Close cancels any pending undo expiry. The session ignores all gestures
// afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.candidate = nil
	s.stopTimer()
}

// commitRejection removes every active span sharing offsets with a rejected
// span and makes the batch the only undoable one. Caller holds s.mu.
func (s *Session) commitRejection(batch []model.Span) {
	s.stopTimer()

	kept := s.spans[:0]
	for _, sp := range s.spans {
		if !containsOffsets(batch, sp) {
			kept = append(kept, sp)
		}
	}
	s.spans = kept
	s.lastRejected = batch

	s.timerGen++
	gen := s.timerGen
	s.timer = s.clock.AfterFunc(s.undoWindow, func() { s.expire(gen) })

	s.log.Debug().Int("rejected", len(batch)).Dur("undo_window", s.undoWindow).Msg("rejection committed")
}

func (s *Session) expire(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.timerGen {
		s.mu.Unlock()
		return
	}
	s.lastRejected = nil
	s.timer = nil
	hook := s.onExpire
	s.mu.Unlock()

	s.log.Debug().Msg("undo window expired")
	if hook != nil {
		hook()
	}
}

// stopTimer cancels the pending expiry. Caller holds s.mu.
func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
}

func (s *Session) isActive(span model.Span) bool {
	for _, sp := range s.spans {
		if sp.SameOffsets(span) {
			return true
		}
	}
	return false
}

func (s *Session) manualSpan(occ model.Occurrence) model.Span {
	return model.Span{
		ID:    s.newID(),
		Text:  occ.Text,
		Start: occ.Start,
		End:   occ.End,
		Kind:  model.KindManual,
		Page:  s.doc.PageOf(occ.Start),
	}
}

func (s *Session) copySpans() []model.Span {
	out := make([]model.Span, len(s.spans))
	copy(out, s.spans)
	return out
}

func containsOffsets(batch []model.Span, sp model.Span) bool {
	for _, b := range batch {
		if b.SameOffsets(sp) {
			return true
		}
	}
	return false
}
