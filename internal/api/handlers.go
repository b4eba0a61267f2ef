package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/sprite-ai/redline/internal/detect"
	"github.com/sprite-ai/redline/internal/locate"
	"github.com/sprite-ai/redline/internal/model"
	"github.com/sprite-ai/redline/internal/render"
	"github.com/sprite-ai/redline/internal/service"
)

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Occurrences ---

type occurrencesRequest struct {
	Text   string `json:"text"`
	Needle string `json:"needle"`
}

type occurrencesResponse struct {
	Count       int                `json:"count"`
	Occurrences []model.Occurrence `json:"occurrences"`
}

func (s *Server) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	var req occurrencesRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	occ := locate.FindAll(req.Text, req.Needle)
	if occ == nil {
		occ = []model.Occurrence{}
	}
	s.writeJSON(w, http.StatusOK, occurrencesResponse{Count: len(occ), Occurrences: occ})
}

// --- Word ---

type wordRequest struct {
	Text   string `json:"text"`
	Offset int    `json:"offset"`
}

type wordResponse struct {
	Found bool              `json:"found"`
	Word  *model.Occurrence `json:"word,omitempty"`
}

func (s *Server) handleWord(w http.ResponseWriter, r *http.Request) {
	var req wordRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	var resp wordResponse
	if word, ok := locate.WordAt(req.Text, req.Offset); ok {
		resp.Found = true
		resp.Word = &word
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// --- Render ---

type renderRequest struct {
	Text       string       `json:"text"`
	Redactions []model.Span `json:"redactions"`
}

type renderResponse struct {
	Segments []render.Segment `json:"segments"`
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	segs := render.Segments(req.Text, req.Redactions)
	if segs == nil {
		segs = []render.Segment{}
	}
	s.writeJSON(w, http.StatusOK, renderResponse{Segments: segs})
}

// --- Page ---

type pageRequest struct {
	PageOffsets []int `json:"page_offsets"`
	Offset      int   `json:"offset"`
}

type pageResponse struct {
	Page int `json:"page"`
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	var req pageRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, pageResponse{Page: model.PageOf(req.PageOffsets, req.Offset)})
}

// --- Detect ---

type detectRequest struct {
	Text     string   `json:"text"`
	Filename string   `json:"filename,omitempty"`
	Skip     []string `json:"skip,omitempty"`
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req detectRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if err := detect.ValidatePasses(req.Skip); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a := detect.Run(req.Text, detect.Options{
		DenyList: s.denyList,
		Skip:     req.Skip,
		Filename: req.Filename,
	})
	s.writeJSON(w, http.StatusOK, a)
}

// --- Analyze / Generate (proxied) ---

// readUpload reads the "file" form field and runs pre-flight validation.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	if s.svc == nil {
		s.writeError(w, http.StatusServiceUnavailable, "analysis service is not configured")
		return "", nil, false
	}

	// Leave room for the multipart envelope and form fields.
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "file is too large")
			return "", nil, false
		}
		s.writeError(w, http.StatusBadRequest, "No file provided")
		return "", nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.maxUpload+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "reading upload: "+err.Error())
		return "", nil, false
	}

	name := filepath.Base(header.Filename)
	head := data
	if len(head) > 8 {
		head = head[:8]
	}
	if err := service.Validate(name, int64(len(data)), head, s.maxUpload); err != nil {
		status := http.StatusBadRequest
		if int64(len(data)) > s.maxUpload {
			status = http.StatusRequestEntityTooLarge
		}
		s.writeError(w, status, err.Error())
		return "", nil, false
	}
	return name, data, true
}

// writeServiceError maps a failed service call to a response.
func (s *Server) writeServiceError(w http.ResponseWriter, err error, def string) {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		s.writeError(w, svcErr.Status, svcErr.Message)
		return
	}
	s.log.Error().Err(err).Msg("service request failed")
	s.writeError(w, http.StatusBadGateway, def)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	name, data, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	a, err := s.svc.Analyze(r.Context(), name, bytes.NewReader(data))
	if err != nil {
		s.writeServiceError(w, err, service.DefaultAnalyzeError)
		return
	}
	a.FileSize = int64(len(data))
	s.writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	name, data, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	raw := r.FormValue("redactions")
	if raw == "" {
		s.writeError(w, http.StatusBadRequest, "No redaction data provided")
		return
	}
	var redactions []model.Span
	if err := json.Unmarshal([]byte(raw), &redactions); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid redactions: "+err.Error())
		return
	}

	out, err := s.svc.Generate(r.Context(), name, bytes.NewReader(data), redactions)
	if err != nil {
		s.writeServiceError(w, err, service.DefaultGenerateError)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", service.RedactedName(name)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out); err != nil {
		s.log.Warn().Err(err).Msg("write generated document")
	}
}
