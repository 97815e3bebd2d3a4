// Package server exposes the report form as an HTML page plus a small JSON API,
// and optionally hosts the analysis backend.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"medagentx/form"
	"medagentx/render"
	"medagentx/report"
)

//go:embed web/index.html
var webFS embed.FS

const sessionCookie = "medagentx_session"

// maxReportBytes bounds the size of a submitted report.
const maxReportBytes = 1 << 20

type Server struct {
	validator *report.Validator
	analyzer  form.Analyzer
	renderer  *render.Renderer
	store     *sessionStore
	page      *template.Template
	logger    *zap.Logger
}

func New(validator *report.Validator, analyzer form.Analyzer, logger *zap.Logger) (*Server, error) {
	if analyzer == nil {
		return nil, errors.New("analyzer required")
	}
	if validator == nil {
		validator = report.DefaultValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	page, err := template.ParseFS(webFS, "web/index.html")
	if err != nil {
		return nil, err
	}
	return &Server{
		validator: validator,
		analyzer:  analyzer,
		renderer:  render.New(),
		store:     newStore(DefaultSessionTTL, DefaultMaxSessions),
		page:      page,
		logger:    logger,
	}, nil
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /submit", s.handleSubmitForm)
	mux.HandleFunc("POST /api/validate", s.handleValidate)
	mux.HandleFunc("POST /api/submit", s.handleSubmitAPI)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /healthz", handleHealth)
	return recoverMiddleware(s.logger, logMiddleware(s.logger, mux))
}

func sessionID(r *http.Request) string {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return ""
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return ""
	}
	return c.Value
}

// lookup returns the caller's controller without creating one.
func (s *Server) lookup(r *http.Request) (*form.Controller, bool) {
	id := sessionID(r)
	if id == "" {
		return nil, false
	}
	return s.store.get(id)
}

// view is the caller's current form state; callers without a session see an
// empty form.
func (s *Server) view(r *http.Request) form.View {
	if ctrl, ok := s.lookup(r); ok {
		return ctrl.View()
	}
	return form.View{State: form.Idle}
}

// controller returns the caller's form controller, issuing a session cookie on
// first contact. Only submissions create sessions.
func (s *Server) controller(w http.ResponseWriter, r *http.Request) (*form.Controller, error) {
	id := sessionID(r)
	if id == "" {
		id = uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    id,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return s.store.getOrCreate(id, func() (*form.Controller, error) {
		return form.NewController(s.validator, s.analyzer, s.logger.With(zap.String("session", id)))
	})
}

// --- Page ---

type pageData struct {
	form.View
	Sections []render.Section
	Notice   string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.writePage(w, http.StatusOK, s.view(r), "")
}

func (s *Server) handleSubmitForm(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.controller(w, r)
	if err != nil {
		http.Error(w, err.Error(), sessionErrStatus(err))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxReportBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctrl.Edit(r.PostFormValue("report"))

	status, notice := http.StatusOK, ""
	if err := ctrl.Submit(r.Context()); err != nil {
		status, notice = submitStatus(err)
	}
	s.writePage(w, status, ctrl.View(), notice)
}

func (s *Server) writePage(w http.ResponseWriter, status int, view form.View, notice string) {
	data := pageData{View: view, Notice: notice}
	if view.Result != nil {
		sections, err := s.renderer.Sections(*view.Result)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		data.Sections = sections
	}
	var buf strings.Builder
	if err := s.page.Execute(&buf, data); err != nil {
		s.logger.Error("render page", zap.Error(err))
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(buf.String()))
}

// --- JSON API ---

type reportReq struct {
	Report string `json:"report"`
}

type validateResp struct {
	Valid    bool     `json:"valid"`
	Reason   string   `json:"reason,omitempty"`
	Message  string   `json:"message,omitempty"`
	Keywords []string `json:"keywords"`
}

type stateResp struct {
	form.View
	Sections []render.Section `json:"sections,omitempty"`
	Notice   string           `json:"notice,omitempty"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req reportReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// keep the session's draft and displayed warning in step with the page
	if ctrl, ok := s.lookup(r); ok {
		ctrl.Edit(req.Report)
	}
	v := s.validator.Validate(req.Report)
	keywords := s.validator.Matches(req.Report)
	if keywords == nil {
		keywords = []string{}
	}
	writeJSON(w, http.StatusOK, validateResp{
		Valid:    v.IsValid(),
		Reason:   string(v.Reason),
		Message:  v.Message(),
		Keywords: keywords,
	})
}

func (s *Server) handleSubmitAPI(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.controller(w, r)
	if err != nil {
		writeError(w, sessionErrStatus(err), err.Error())
		return
	}
	var req reportReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctrl.Edit(req.Report)

	status, notice := http.StatusOK, ""
	if err := ctrl.Submit(r.Context()); err != nil {
		status, notice = submitStatus(err)
	}
	s.writeState(w, status, ctrl.View(), notice)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeState(w, http.StatusOK, s.view(r), "")
}

func (s *Server) writeState(w http.ResponseWriter, status int, view form.View, notice string) {
	resp := stateResp{View: view, Notice: notice}
	if view.Result != nil {
		sections, err := s.renderer.Sections(*view.Result)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Sections = sections
	}
	writeJSON(w, status, resp)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Helpers ---

// submitStatus maps a Submit error to an HTTP status and an optional notice.
func submitStatus(err error) (int, string) {
	var ve *form.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity, ""
	case errors.Is(err, form.ErrSubmissionInFlight):
		return http.StatusConflict, "An analysis is already running for this report. Please wait for it to finish."
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, ""
	default:
		return http.StatusBadGateway, ""
	}
}

func sessionErrStatus(err error) int {
	if errors.Is(err, errSessionsFull) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxReportBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
