package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/lexgate/internal/worker"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	workers := s.dispatcher.Health()
	if workers == nil {
		workers = []worker.ActorStats{}
	}

	status := "ok"
	for _, st := range workers {
		if st.State != worker.StateReady {
			status = "degraded"
			break
		}
	}

	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        status,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Workers:       workers,
	})
}

// handleOpenAPI handles GET /openapi.json (no auth).
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(s.dispatcher.Languages()))
}

// handleLanguages handles GET /languages.
func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	langs := s.dispatcher.Languages()
	if langs.Grammar == nil {
		langs.Grammar = []string{}
	}
	if langs.Speller == nil {
		langs.Speller = []string{}
	}
	respondJSON(w, http.StatusOK, langs)
}

// handleGrammar handles POST /grammar/{lang}.
func (s *Server) handleGrammar(w http.ResponseWriter, r *http.Request) {
	lang := chi.URLParam(r, "lang")

	var req GrammarRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	if req.Text == nil {
		s.writeError(w, http.StatusBadRequest, "text is required", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	res, err := s.dispatcher.Check(ctx, lang, *req.Text)
	if err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// handlePreferences handles GET /grammar/{lang}/preferences.
func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request) {
	table, err := s.dispatcher.ListPreferences(chi.URLParam(r, "lang"))
	if err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	if table == nil {
		table = map[string]string{}
	}
	respondJSON(w, http.StatusOK, PreferencesResponse{ErrorTags: table})
}

// handleSpeller handles POST /speller/{lang}.
func (s *Server) handleSpeller(w http.ResponseWriter, r *http.Request) {
	lang := chi.URLParam(r, "lang")

	var req SpellerRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	if req.Word == nil {
		s.writeError(w, http.StatusBadRequest, "word is required", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	res, err := s.dispatcher.Spell(ctx, lang, *req.Word)
	if err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return errors.New("invalid JSON body: " + err.Error())
	}
	if dec.More() {
		return errors.New("invalid JSON body: trailing data")
	}
	return nil
}

// writeDispatchError maps a dispatch failure onto an HTTP status.
func (s *Server) writeDispatchError(w http.ResponseWriter, r *http.Request, err error) {
	var werr *worker.Error
	switch {
	case errors.As(err, &werr):
		status := http.StatusInternalServerError
		switch werr.Kind {
		case worker.KindUnsupportedLanguage:
			status = http.StatusNotFound
		case worker.KindWorkerUnavailable:
			status = http.StatusServiceUnavailable
		case worker.KindProtocolViolation:
			status = http.StatusBadGateway
			s.logger.Warn("worker protocol violation", "language", werr.Language, "error", err)
		}
		s.writeError(w, status, err.Error(), string(werr.Kind))
	case errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusGatewayTimeout, "timed out waiting for worker", "timeout")
	case errors.Is(err, context.Canceled):
		// Usually the client went away and nobody reads this.
		s.logger.Debug("request cancelled", "path", r.URL.Path)
		s.writeError(w, http.StatusServiceUnavailable, "request cancelled", "cancelled")
	default:
		s.logger.Error("dispatch failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error", "")
	}
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message, kind string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message, Kind: kind})
}
