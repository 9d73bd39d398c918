package api

import "github.com/mattjoyce/lexgate/internal/worker"

// GrammarRequest is the JSON body for POST /grammar/{lang}.
type GrammarRequest struct {
	Text *string `json:"text"`
}

// SpellerRequest is the JSON body for POST /speller/{lang}.
type SpellerRequest struct {
	Word *string `json:"word"`
}

// PreferencesResponse is returned by GET /grammar/{lang}/preferences.
type PreferencesResponse struct {
	ErrorTags map[string]string `json:"error_tags"`
}

// ErrorResponse is returned on errors. Kind is set for dispatch failures.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	// Status is "ok", or "degraded" when any worker is not ready.
	Status        string              `json:"status"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	Workers       []worker.ActorStats `json:"workers"`
}
