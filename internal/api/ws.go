package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sprite-ai/redline/internal/detect"
	"github.com/sprite-ai/redline/internal/logging"
	"github.com/sprite-ai/redline/internal/model"
	"github.com/sprite-ai/redline/internal/render"
	"github.com/sprite-ai/redline/internal/service"
	"github.com/sprite-ai/redline/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024 * 64,
	WriteBufferSize: 1024 * 64,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local dev; restrict in production
	},
}

// WebSocket message types from client.
const (
	wsMsgLoad     = "load"
	wsMsgReject   = "reject"
	wsMsgAdd      = "add"
	wsMsgResolve  = "resolve"
	wsMsgUndo     = "undo"
	wsMsgEditMode = "edit_mode"
	wsMsgState    = "state"
	wsMsgGenerate = "generate"
	wsMsgFinish   = "finish"
)

// WebSocket message types to client.
const (
	wsMsgStateOut    = "state"
	wsMsgUndoExpired = "undo_expired"
	wsMsgGenerated   = "generated"
	wsMsgSummary     = "summary"
	wsMsgError       = "error"
)

// wsMessage is the envelope for WebSocket messages in both directions.
type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// wsRejectMsg is the payload for "reject" messages.
type wsRejectMsg struct {
	SpanID string         `json:"span_id"`
	Anchor session.Anchor `json:"anchor"`
}

// wsAddMsg is the payload for "add" messages.
type wsAddMsg struct {
	Selection   string         `json:"selection"`
	Offset      int            `json:"offset"`
	OnHighlight bool           `json:"on_highlight"`
	Anchor      session.Anchor `json:"anchor"`
}

// wsResolveMsg is the payload for "resolve" messages.
type wsResolveMsg struct {
	Choice string `json:"choice"`
}

// wsEditModeMsg is the payload for "edit_mode" messages. A missing Enabled
// toggles.
type wsEditModeMsg struct {
	Enabled *bool `json:"enabled"`
}

// wsGenerateMsg carries the original document for generation.
type wsGenerateMsg struct {
	Filename string `json:"filename"`
	File     []byte `json:"file"`
}

// wsCandidate adds the prompt text to a candidate.
type wsCandidate struct {
	session.Candidate
	Prompt string `json:"prompt"`
}

// wsStateResponse is the full view of the session after every change.
type wsStateResponse struct {
	Outcome           string           `json:"outcome,omitempty"`
	Segments          []render.Segment `json:"segments"`
	Spans             []model.Span     `json:"spans"`
	Candidate         *wsCandidate     `json:"candidate,omitempty"`
	EditMode          bool             `json:"edit_mode"`
	UndoAvailable     bool             `json:"undo_available"`
	LastRejectedCount int              `json:"last_rejected_count"`
	Notice            string           `json:"notice,omitempty"`
}

// wsGeneratedResponse returns the redacted document.
type wsGeneratedResponse struct {
	Filename string `json:"filename"`
	File     []byte `json:"file"`
}

// wsSummaryResponse is sent when the review is finished.
type wsSummaryResponse struct {
	Filename   string         `json:"filename,omitempty"`
	Total      int            `json:"total"`
	ByKind     map[string]int `json:"by_kind"`
	Redactions []model.Span   `json:"redactions"`
}

// wsConn holds the state for one WebSocket review connection.
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	ctx context.Context
	srv *Server
	log zerolog.Logger

	sess       *session.Session
	filename   string
	generating atomic.Bool
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade")
		return
	}
	defer conn.Close()

	id := uuid.NewString()
	c := &wsConn{
		conn: conn,
		ctx:  logging.WithSessionID(r.Context(), id),
		srv:  s,
		log:  s.log.With().Str("session_id", id).Logger(),
	}
	defer func() {
		if c.sess != nil {
			c.sess.Close()
		}
	}()

	c.log.Info().Msg("review session opened")
	defer c.log.Info().Msg("review session closed")

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("websocket read")
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("invalid message format")
			continue
		}

		switch msg.Type {
		case wsMsgLoad:
			c.handleLoad(msg.Data)
		case wsMsgReject:
			c.handleReject(msg.Data)
		case wsMsgAdd:
			c.handleAdd(msg.Data)
		case wsMsgResolve:
			c.handleResolve(msg.Data)
		case wsMsgUndo:
			c.handleUndo()
		case wsMsgEditMode:
			c.handleEditMode(msg.Data)
		case wsMsgState:
			if c.requireSession() {
				c.sendState(c.sess, "")
			}
		case wsMsgGenerate:
			c.handleGenerate(msg.Data)
		case wsMsgFinish:
			c.handleFinish()
		default:
			c.sendError("unknown message type: " + msg.Type)
		}
	}
}

func (c *wsConn) handleLoad(data json.RawMessage) {
	var a model.Analysis
	if err := json.Unmarshal(data, &a); err != nil {
		c.sendError("invalid load data")
		return
	}
	if dropped := a.Validate(); dropped > 0 {
		c.log.Warn().Int("dropped", dropped).Msg("load contained spans outside the text")
	}

	if c.sess != nil {
		c.sess.Close()
	}

	var sess *session.Session
	sess = session.FromAnalysis(&a,
		session.WithUndoWindow(c.srv.undoWindow),
		session.WithLogger(c.log.With().Str("cmp", "session").Logger()),
		session.WithExpiryHook(func() {
			c.send(wsMsgUndoExpired, map[string]any{})
			c.sendState(sess, "")
		}),
	)
	c.sess = sess
	c.filename = a.Filename

	c.log.Info().Ctx(c.ctx).
		Str("file", a.Filename).
		Int("redactions", len(a.Redactions)).
		Msg("document loaded")
	c.sendState(sess, "")
}

func (c *wsConn) handleReject(data json.RawMessage) {
	if !c.requireSession() {
		return
	}
	var req wsRejectMsg
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("invalid reject data")
		return
	}

	span, ok := c.sess.SpanByID(req.SpanID)
	if !ok {
		c.sendError("unknown span: " + req.SpanID)
		return
	}
	out := c.sess.Reject(span, req.Anchor)
	c.sendState(c.sess, out.String())
}

func (c *wsConn) handleAdd(data json.RawMessage) {
	if !c.requireSession() {
		return
	}
	var req wsAddMsg
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("invalid add data")
		return
	}

	out := c.sess.Add(session.Gesture{
		Selection:   req.Selection,
		Offset:      req.Offset,
		OnHighlight: req.OnHighlight,
		Anchor:      req.Anchor,
	})
	c.sendState(c.sess, out.String())
}

func (c *wsConn) handleResolve(data json.RawMessage) {
	if !c.requireSession() {
		return
	}
	var req wsResolveMsg
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("invalid resolve data")
		return
	}
	choice, err := session.ParseChoice(req.Choice)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	out := c.sess.Resolve(choice)
	c.sendState(c.sess, out.String())
}

func (c *wsConn) handleUndo() {
	if !c.requireSession() {
		return
	}
	outcome := session.OutcomeIgnored
	if c.sess.Undo() > 0 {
		outcome = session.OutcomeApplied
	}
	c.sendState(c.sess, outcome.String())
}

func (c *wsConn) handleEditMode(data json.RawMessage) {
	if !c.requireSession() {
		return
	}
	var req wsEditModeMsg
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			c.sendError("invalid edit_mode data")
			return
		}
	}

	if req.Enabled == nil {
		c.sess.ToggleEditMode()
	} else {
		c.sess.SetEditMode(*req.Enabled)
	}
	c.sendState(c.sess, "")
}

// handleGenerate runs generation in the background so the review stays
// interactive. A second request while one is running is refused.
func (c *wsConn) handleGenerate(data json.RawMessage) {
	if !c.requireSession() {
		return
	}
	if c.srv.svc == nil {
		c.sendError("analysis service is not configured")
		return
	}
	var req wsGenerateMsg
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("invalid generate data")
		return
	}
	if req.Filename == "" {
		req.Filename = c.filename
	}
	if err := service.Validate(req.Filename, int64(len(req.File)), req.File, c.srv.maxUpload); err != nil {
		c.sendError(err.Error())
		return
	}
	if !c.generating.CompareAndSwap(false, true) {
		c.sendError("a document is already being generated")
		return
	}

	redactions := c.sess.Redactions()
	go func() {
		defer c.generating.Store(false)

		out, err := c.srv.svc.Generate(c.ctx, req.Filename, bytes.NewReader(req.File), redactions)
		if err != nil {
			msg := service.DefaultGenerateError
			var svcErr *service.Error
			if errors.As(err, &svcErr) {
				msg = svcErr.Message
			}
			c.log.Warn().Ctx(c.ctx).Err(err).Msg("generation failed")
			c.sendError(msg)
			return
		}
		c.log.Info().Ctx(c.ctx).Int("redactions", len(redactions)).Msg("document generated")
		c.send(wsMsgGenerated, wsGeneratedResponse{
			Filename: service.RedactedName(req.Filename),
			File:     out,
		})
	}()
}

func (c *wsConn) handleFinish() {
	if !c.requireSession() {
		return
	}

	redactions := c.sess.Redactions()
	byKind := make(map[string]int)
	for k, n := range detect.Counts(redactions) {
		byKind[string(k)] = n
	}
	c.send(wsMsgSummary, wsSummaryResponse{
		Filename:   c.filename,
		Total:      len(redactions),
		ByKind:     byKind,
		Redactions: redactions,
	})
}

func (c *wsConn) requireSession() bool {
	if c.sess == nil {
		c.sendError("no document loaded")
		return false
	}
	return true
}

func (c *wsConn) sendState(sess *session.Session, outcome string) {
	st := sess.State()
	resp := wsStateResponse{
		Outcome:           outcome,
		Segments:          render.SegmentsRunes(sess.Document().Runes(), st.Spans),
		Spans:             st.Spans,
		EditMode:          st.EditMode,
		UndoAvailable:     st.UndoAvailable,
		LastRejectedCount: st.LastRejectedCount,
	}
	if resp.Segments == nil {
		resp.Segments = []render.Segment{}
	}
	if st.Candidate != nil {
		resp.Candidate = &wsCandidate{Candidate: *st.Candidate, Prompt: st.Candidate.Prompt()}
	}
	if st.UndoAvailable {
		resp.Notice = session.UndoNotice(st.LastRejectedCount)
	}
	c.send(wsMsgStateOut, resp)
}

func (c *wsConn) send(msgType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		c.log.Error().Err(err).Msg("ws marshal")
		return
	}
	msg := wsMessage{Type: msgType, Data: raw}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(msg); err != nil {
		c.log.Debug().Err(err).Msg("ws write")
	}
}

func (c *wsConn) sendError(errMsg string) {
	c.send(wsMsgError, map[string]string{"message": errMsg})
}
