package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sprite-ai/redline/internal/model"
	"github.com/sprite-ai/redline/internal/service"
	"github.com/sprite-ai/redline/internal/session"
)

const testText = "Contact Jane Doe or Jane Doe at jane@x.com"

func testAnalysis() model.Analysis {
	return model.Analysis{
		Filename:    "contract.pdf",
		FullText:    testText,
		PageOffsets: []int{0},
		Redactions: []model.Span{
			{ID: "p1", Text: "Jane Doe", Start: 8, End: 16, Kind: model.KindPerson, Page: 1},
			{ID: "p2", Text: "Jane Doe", Start: 20, End: 28, Kind: model.KindPerson, Page: 1},
			{ID: "e1", Text: "jane@x.com", Start: 32, End: 42, Kind: model.KindEmail, Page: 1},
		},
	}
}

type fakeService struct {
	mu         sync.Mutex
	analyzeErr error
	genErr     error
	genGate    chan struct{}
	generated  [][]model.Span
}

func (f *fakeService) Analyze(ctx context.Context, filename string, r io.Reader) (*model.Analysis, error) {
	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}
	a := testAnalysis()
	a.Filename = filename
	return &a, nil
}

func (f *fakeService) Generate(ctx context.Context, filename string, r io.Reader, redactions []model.Span) ([]byte, error) {
	if f.genGate != nil {
		<-f.genGate
	}
	f.mu.Lock()
	f.generated = append(f.generated, redactions)
	f.mu.Unlock()
	if f.genErr != nil {
		return nil, f.genErr
	}
	return []byte("%PDF-redacted"), nil
}

func newTestServer(opts ...Option) *Server {
	return New(":0", append([]Option{WithLogger(zerolog.Nop())}, opts...)...)
}

func postJSON(t *testing.T, srv *Server, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(v)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func multipartRequest(t *testing.T, path, filename string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(data)
	}
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %q", resp["status"])
	}
}

func TestOccurrencesEndpoint(t *testing.T) {
	srv := newTestServer()
	w := postJSON(t, srv, "/api/occurrences", occurrencesRequest{Text: "aaa", Needle: "aa"})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp occurrencesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if resp.Count != 2 {
		t.Errorf("expected 2 overlapping matches, got %d", resp.Count)
	}
	if resp.Occurrences[1].Start != 1 || resp.Occurrences[1].End != 3 {
		t.Errorf("expected second match at 1..3, got %+v", resp.Occurrences[1])
	}
}

func TestOccurrencesEmptyNeedle(t *testing.T) {
	srv := newTestServer()
	w := postJSON(t, srv, "/api/occurrences", occurrencesRequest{Text: "abc"})

	if !strings.Contains(w.Body.String(), `"occurrences": []`) {
		t.Errorf("expected empty list, got %s", w.Body.String())
	}
}

func TestWordEndpoint(t *testing.T) {
	srv := newTestServer()

	tests := []struct {
		offset int
		found  bool
		word   string
	}{
		{2, true, "hi"},
		{0, false, ""},
		{6, true, "there"},
		{99, false, ""},
	}

	for _, tt := range tests {
		w := postJSON(t, srv, "/api/word", wordRequest{Text: " hi there ", Offset: tt.offset})
		var resp wordResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("json decode: %v", err)
		}
		if resp.Found != tt.found {
			t.Errorf("offset %d: expected found=%v, got %v", tt.offset, tt.found, resp.Found)
			continue
		}
		if tt.found && resp.Word.Text != tt.word {
			t.Errorf("offset %d: expected %q, got %q", tt.offset, tt.word, resp.Word.Text)
		}
	}
}

func TestRenderEndpoint(t *testing.T) {
	srv := newTestServer()
	a := testAnalysis()
	w := postJSON(t, srv, "/api/render", renderRequest{Text: a.FullText, Redactions: a.Redactions})

	var resp renderResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if len(resp.Segments) != 6 {
		t.Fatalf("expected 6 segments, got %d", len(resp.Segments))
	}
	if !resp.Segments[1].Highlighted || resp.Segments[1].Span.ID != "p1" {
		t.Errorf("expected second segment to be span p1, got %+v", resp.Segments[1])
	}
}

func TestPageEndpoint(t *testing.T) {
	srv := newTestServer()
	w := postJSON(t, srv, "/api/page", pageRequest{PageOffsets: []int{0, 100, 200}, Offset: 150})

	var resp pageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if resp.Page != 2 {
		t.Errorf("expected page 2, got %d", resp.Page)
	}
}

func TestDetectEndpoint(t *testing.T) {
	srv := newTestServer(WithDenyList([]string{}))
	w := postJSON(t, srv, "/api/detect", detectRequest{Text: "Mail jane@x.com\fCall 555-123-4567"})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var a model.Analysis
	if err := json.Unmarshal(w.Body.Bytes(), &a); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if len(a.Redactions) != 2 {
		t.Fatalf("expected 2 redactions, got %d", len(a.Redactions))
	}
	if a.Redactions[1].Page != 2 {
		t.Errorf("expected phone on page 2, got %d", a.Redactions[1].Page)
	}
}

func TestDetectBadRequests(t *testing.T) {
	srv := newTestServer()

	if w := postJSON(t, srv, "/api/detect", detectRequest{Text: "  "}); w.Code != http.StatusBadRequest {
		t.Errorf("empty text: expected 400, got %d", w.Code)
	}
	if w := postJSON(t, srv, "/api/detect", detectRequest{Text: "x", Skip: []string{"nope"}}); w.Code != http.StatusBadRequest {
		t.Errorf("unknown pass: expected 400, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/detect", strings.NewReader("{bad json"))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad json: expected 400, got %d", w.Code)
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	srv := newTestServer(WithService(&fakeService{}))
	pdf := []byte("%PDF-1.7 body")
	req := multipartRequest(t, "/api/analyze", "contract.pdf", pdf, nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var a model.Analysis
	if err := json.Unmarshal(w.Body.Bytes(), &a); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if a.FileSize != int64(len(pdf)) {
		t.Errorf("expected file_size %d, got %d", len(pdf), a.FileSize)
	}
	if len(a.Redactions) != 3 {
		t.Errorf("expected 3 redactions, got %d", len(a.Redactions))
	}
}

func TestAnalyzePreflight(t *testing.T) {
	srv := newTestServer(WithService(&fakeService{}), WithMaxUpload(64))

	tests := []struct {
		name     string
		filename string
		data     []byte
		status   int
	}{
		{"no file", "", nil, http.StatusBadRequest},
		{"not a pdf", "notes.txt", []byte("hello"), http.StatusBadRequest},
		{"bad magic", "fake.pdf", []byte("hello"), http.StatusBadRequest},
		{"empty", "empty.pdf", nil, http.StatusBadRequest},
		{"too large", "big.pdf", append([]byte("%PDF-"), bytes.Repeat([]byte("x"), 100)...), http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := multipartRequest(t, "/api/analyze", tt.filename, tt.data, nil)
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), `"error"`) {
				t.Errorf("expected error body, got %s", w.Body.String())
			}
		})
	}
}

func TestAnalyzeServiceError(t *testing.T) {
	svc := &fakeService{analyzeErr: &service.Error{Status: http.StatusServiceUnavailable, Message: "model unavailable"}}
	srv := newTestServer(WithService(svc))
	req := multipartRequest(t, "/api/analyze", "a.pdf", []byte("%PDF-1"), nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "model unavailable") {
		t.Errorf("expected service message, got %s", w.Body.String())
	}
}

func TestAnalyzeWithoutService(t *testing.T) {
	srv := newTestServer()
	req := multipartRequest(t, "/api/analyze", "a.pdf", []byte("%PDF-1"), nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestGenerateEndpoint(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(WithService(svc))
	redactions, _ := json.Marshal(testAnalysis().Redactions[:1])
	req := multipartRequest(t, "/api/generate", "contract.pdf", []byte("%PDF-1"), map[string]string{
		"redactions": string(redactions),
	})
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Disposition"); !strings.Contains(got, "redacted_contract.pdf") {
		t.Errorf("expected redacted file name, got %q", got)
	}
	if w.Body.String() != "%PDF-redacted" {
		t.Errorf("unexpected body %q", w.Body.String())
	}
	if len(svc.generated) != 1 || len(svc.generated[0]) != 1 {
		t.Errorf("expected one generation with one redaction, got %v", svc.generated)
	}
}

func TestGenerateMissingRedactions(t *testing.T) {
	srv := newTestServer(WithService(&fakeService{}))
	req := multipartRequest(t, "/api/generate", "contract.pdf", []byte("%PDF-1"), nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// --- WebSocket ---

func dialWS(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendWS(t *testing.T, conn *websocket.Conn, msgType string, data any) {
	t.Helper()
	var raw json.RawMessage
	if data != nil {
		raw, _ = json.Marshal(data)
	}
	if err := conn.WriteJSON(wsMessage{Type: msgType, Data: raw}); err != nil {
		t.Fatalf("ws write %s: %v", msgType, err)
	}
}

func readWS(t *testing.T, conn *websocket.Conn, wantType string) json.RawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ws read %s: %v", wantType, err)
	}
	if msg.Type != wantType {
		t.Fatalf("expected %q message, got %q: %s", wantType, msg.Type, msg.Data)
	}
	return msg.Data
}

func readState(t *testing.T, conn *websocket.Conn) wsStateResponse {
	t.Helper()
	var st wsStateResponse
	if err := json.Unmarshal(readWS(t, conn, wsMsgStateOut), &st); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	return st
}

func TestWebSocketReviewSession(t *testing.T) {
	conn := dialWS(t, newTestServer())

	sendWS(t, conn, wsMsgLoad, testAnalysis())
	st := readState(t, conn)
	if len(st.Spans) != 3 || len(st.Segments) != 6 {
		t.Fatalf("expected 3 spans and 6 segments, got %d/%d", len(st.Spans), len(st.Segments))
	}

	// Reject one "Jane Doe": two share the text, so a candidate opens.
	sendWS(t, conn, wsMsgReject, wsRejectMsg{SpanID: "p1", Anchor: session.Anchor{Top: 3, Left: 9}})
	st = readState(t, conn)
	if st.Outcome != "candidate" || st.Candidate == nil {
		t.Fatalf("expected candidate, got %+v", st)
	}
	if st.Candidate.Prompt != `Found 2 instances of "Jane Doe".` {
		t.Errorf("unexpected prompt %q", st.Candidate.Prompt)
	}

	sendWS(t, conn, wsMsgResolve, wsResolveMsg{Choice: "all"})
	st = readState(t, conn)
	if st.Outcome != "applied" || len(st.Spans) != 1 {
		t.Fatalf("expected 1 span after reject all, got %+v", st)
	}
	if !st.UndoAvailable || st.Notice != "2 item(s) removed." {
		t.Errorf("expected undo notice, got %+v", st)
	}

	sendWS(t, conn, wsMsgUndo, nil)
	st = readState(t, conn)
	if len(st.Spans) != 3 || st.UndoAvailable {
		t.Fatalf("expected 3 spans restored, got %+v", st)
	}

	sendWS(t, conn, wsMsgFinish, nil)
	var summary wsSummaryResponse
	if err := json.Unmarshal(readWS(t, conn, wsMsgSummary), &summary); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if summary.Total != 3 || summary.ByKind["PERSON"] != 2 || summary.ByKind["EMAIL"] != 1 {
		t.Errorf("unexpected summary %+v", summary)
	}
	if summary.Redactions[0].Start != 8 {
		t.Errorf("expected redactions sorted by start, got %+v", summary.Redactions)
	}
}

func TestWebSocketAddInEditMode(t *testing.T) {
	conn := dialWS(t, newTestServer())

	a := testAnalysis()
	a.Redactions = a.Redactions[:2]
	sendWS(t, conn, wsMsgLoad, a)
	readState(t, conn)

	// Edit mode is off: adds are ignored.
	sendWS(t, conn, wsMsgAdd, wsAddMsg{Selection: "jane@x.com"})
	if st := readState(t, conn); st.Outcome != "ignored" {
		t.Errorf("expected ignored outside edit mode, got %q", st.Outcome)
	}

	sendWS(t, conn, wsMsgEditMode, map[string]bool{"enabled": true})
	if st := readState(t, conn); !st.EditMode {
		t.Fatal("expected edit mode on")
	}

	sendWS(t, conn, wsMsgAdd, wsAddMsg{Selection: "jane@x.com"})
	st := readState(t, conn)
	if st.Outcome != "applied" || len(st.Spans) != 3 {
		t.Fatalf("expected immediate add, got %+v", st)
	}
	added := st.Spans[2]
	if added.Kind != model.KindManual || added.Start != 32 || added.ID == "" {
		t.Errorf("unexpected added span %+v", added)
	}

	// Toggle without a payload.
	sendWS(t, conn, wsMsgEditMode, nil)
	if st := readState(t, conn); st.EditMode {
		t.Error("expected edit mode toggled off")
	}
}

func TestWebSocketUndoExpires(t *testing.T) {
	conn := dialWS(t, newTestServer(WithUndoWindow(50*time.Millisecond)))

	sendWS(t, conn, wsMsgLoad, testAnalysis())
	readState(t, conn)

	sendWS(t, conn, wsMsgReject, wsRejectMsg{SpanID: "e1"})
	if st := readState(t, conn); !st.UndoAvailable {
		t.Fatal("expected undo available")
	}

	readWS(t, conn, wsMsgUndoExpired)
	if st := readState(t, conn); st.UndoAvailable || len(st.Spans) != 2 {
		t.Errorf("expected expired undo with 2 spans, got %+v", st)
	}

	sendWS(t, conn, wsMsgUndo, nil)
	if st := readState(t, conn); st.Outcome != "ignored" || len(st.Spans) != 2 {
		t.Errorf("expected undo after expiry to be a no-op, got %+v", st)
	}
}

func TestWebSocketErrors(t *testing.T) {
	conn := dialWS(t, newTestServer())

	sendWS(t, conn, wsMsgUndo, nil)
	readWS(t, conn, wsMsgError)

	sendWS(t, conn, "bogus", nil)
	readWS(t, conn, wsMsgError)

	sendWS(t, conn, wsMsgLoad, testAnalysis())
	readState(t, conn)

	sendWS(t, conn, wsMsgReject, wsRejectMsg{SpanID: "missing"})
	readWS(t, conn, wsMsgError)

	sendWS(t, conn, wsMsgResolve, wsResolveMsg{Choice: "maybe"})
	readWS(t, conn, wsMsgError)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	readWS(t, conn, wsMsgError)
}

func TestWebSocketGenerate(t *testing.T) {
	svc := &fakeService{genGate: make(chan struct{})}
	conn := dialWS(t, newTestServer(WithService(svc)))

	sendWS(t, conn, wsMsgLoad, testAnalysis())
	readState(t, conn)

	sendWS(t, conn, wsMsgReject, wsRejectMsg{SpanID: "e1"})
	readState(t, conn)

	pdf := []byte("%PDF-1.7")
	sendWS(t, conn, wsMsgGenerate, wsGenerateMsg{File: pdf})

	// A second request while the first is in flight is refused.
	sendWS(t, conn, wsMsgGenerate, wsGenerateMsg{File: pdf})
	var errResp map[string]string
	json.Unmarshal(readWS(t, conn, wsMsgError), &errResp)
	if !strings.Contains(errResp["message"], "already being generated") {
		t.Errorf("unexpected error %q", errResp["message"])
	}

	close(svc.genGate)
	var gen wsGeneratedResponse
	if err := json.Unmarshal(readWS(t, conn, wsMsgGenerated), &gen); err != nil {
		t.Fatalf("unmarshal generated: %v", err)
	}
	if gen.Filename != "redacted_contract.pdf" || string(gen.File) != "%PDF-redacted" {
		t.Errorf("unexpected generated response %+v", gen)
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if len(svc.generated) != 1 || len(svc.generated[0]) != 2 {
		t.Errorf("expected one generation with the 2 remaining spans, got %v", svc.generated)
	}
}
