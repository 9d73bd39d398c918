package watch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattjoyce/lexgate/internal/worker"
)

// --- Message types ---

type healthMsg struct {
	Status        string              `json:"status"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	Workers       []worker.ActorStats `json:"workers"`
}

type tickMsg time.Time

type pollMsg struct{}

type errMsg error

// --- Commands ---

var httpClient = &http.Client{Timeout: 2 * time.Second}

// fetchHealth queries the /healthz endpoint. The token is optional since
// /healthz is served without auth.
func fetchHealth(apiURL, apiKey string) tea.Msg {
	req, err := http.NewRequest(http.MethodGet, apiURL+"/healthz", nil)
	if err != nil {
		return errMsg(err)
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return errMsg(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errMsg(fmt.Errorf("healthz returned %s", resp.Status))
	}

	var h healthMsg
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return errMsg(fmt.Errorf("decode healthz: %w", err))
	}
	return h
}
