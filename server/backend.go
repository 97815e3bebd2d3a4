package server

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"medagentx/analyzer"
	"medagentx/form"
)

// Backend serves the analysis endpoint that the form posts to.
type Backend struct {
	analyzer form.Analyzer
	logger   *zap.Logger
}

func NewBackend(a form.Analyzer, logger *zap.Logger) (*Backend, error) {
	if a == nil {
		return nil, errors.New("analyzer required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backend{analyzer: a, logger: logger}, nil
}

func (b *Backend) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/analyze", b.handleAnalyze)
	mux.HandleFunc("GET /healthz", handleHealth)
	return recoverMiddleware(b.logger, logMiddleware(b.logger, corsMiddleware(mux)))
}

func (b *Backend) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req reportReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Report) == "" {
		writeError(w, http.StatusBadRequest, "Empty report text")
		return
	}

	res, err := b.analyzer.Analyze(r.Context(), req.Report)
	if err != nil {
		if errors.Is(err, analyzer.ErrEmptyReport) {
			writeError(w, http.StatusBadRequest, "Empty report text")
			return
		}
		b.logger.Error("analysis failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}
