// Package api serves the document session as a JSON HTTP API next to the
// MCP endpoint.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ory/herodot"

	"github.com/bull/docqa/internal/document"
	"github.com/bull/docqa/internal/rag"
)

// Page numbers in requests and responses are 1-based.

type LoadRequest struct {
	Path string `json:"path"`
}

type QuestionRequest struct {
	Question string `json:"question"`
}

type AnswerResponse struct {
	Answer     string `json:"answer"`
	CitedPages []int  `json:"cited_pages"`
}

type Source struct {
	Page       int    `json:"page"`
	SequenceID int    `json:"sequence_id"`
	Text       string `json:"text"`
}

type SourcesResponse struct {
	Sources []Source `json:"sources"`
}

type StatusResponse struct {
	Session    string `json:"session"`
	State      string `json:"state"`
	Source     string `json:"source,omitempty"`
	Pages      int    `json:"pages"`
	Segments   int    `json:"segments"`
	Collection string `json:"collection,omitempty"`
}

// Server routes /api/ requests to the session.
type Server struct {
	mux     *http.ServeMux
	session *rag.Session
	writer  *herodot.JSONWriter
	logger  *slog.Logger
}

// NewServer creates the API handler.
func NewServer(session *rag.Session, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mux:     http.NewServeMux(),
		session: session,
		writer:  herodot.NewJSONWriter(nil),
		logger:  logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("POST /api/load", s.load)
	s.mux.HandleFunc("POST /api/ask", s.ask)
	s.mux.HandleFunc("POST /api/sources", s.sources)
	s.mux.HandleFunc("GET /api/status", s.status)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.mux.ServeHTTP(w, r)
	s.logger.Debug("API request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
}

func (s *Server) load(w http.ResponseWriter, r *http.Request) {
	var req LoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		s.writer.WriteError(w, r, herodot.ErrBadRequest.WithReason("Request body needs a path"))
		return
	}

	if err := s.session.Load(r.Context(), req.Path); err != nil {
		s.logger.Warn("Failed to load document", "path", req.Path, "error", err)
		if errors.Is(err, document.ErrDocumentLoad) {
			s.writer.WriteError(w, r, herodot.ErrBadRequest.WithReason("Could not read the document").WithDebug(err.Error()))
			return
		}
		s.writer.WriteError(w, r, herodot.ErrInternalServerError.WithReason("Failed to index the document").WithDebug(err.Error()))
		return
	}
	s.writer.Write(w, r, s.statusResponse())
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuestion(w, r)
	if !ok {
		return
	}

	answer, err := s.session.Answer(r.Context(), req.Question)
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	s.writer.Write(w, r, &AnswerResponse{
		Answer:     answer.Text,
		CitedPages: document.ToDisplay(answer.CitedPages),
	})
}

func (s *Server) sources(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuestion(w, r)
	if !ok {
		return
	}

	segments, err := s.session.Sources(r.Context(), req.Question)
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	response := &SourcesResponse{Sources: make([]Source, 0, len(segments))}
	for _, seg := range segments {
		response.Sources = append(response.Sources, Source{
			Page:       seg.SourcePage + 1,
			SequenceID: seg.SequenceID,
			Text:       seg.Text,
		})
	}
	s.writer.Write(w, r, response)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	s.writer.Write(w, r, s.statusResponse())
}

func (s *Server) decodeQuestion(w http.ResponseWriter, r *http.Request) (QuestionRequest, bool) {
	var req QuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writer.WriteError(w, r, herodot.ErrBadRequest.WithReason("Invalid request body"))
		return req, false
	}
	return req, true
}

func (s *Server) writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, rag.ErrEmptyQuestion):
		s.writer.WriteError(w, r, herodot.ErrBadRequest.WithReason("Question is empty"))
	case errors.Is(err, rag.ErrNotReady):
		s.writer.WriteError(w, r, herodot.ErrConflict.WithReason("Load a document first"))
	default:
		s.logger.Warn("Query failed", "error", err)
		s.writer.WriteError(w, r, herodot.ErrInternalServerError.WithReason("Failed to answer the question").WithDebug(err.Error()))
	}
}

func (s *Server) statusResponse() *StatusResponse {
	st := s.session.Status()
	return &StatusResponse{
		Session:    st.ID,
		State:      st.State.String(),
		Source:     st.Source,
		Pages:      st.Pages,
		Segments:   st.Segments,
		Collection: st.Collection,
	}
}
