package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/howlingfantods/hairyrug/telemetry"
)

// HandleHealthz is the liveness probe: the process is serving requests.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz checks the chat connection and, when configured, the database.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"chat", func() error {
			if h.d.Chat != nil && !h.d.Chat.Connected() {
				return errors.New("irc not connected")
			}
			return nil
		}},
		{"database", func() error {
			if h.d.DB == nil {
				return nil
			}
			return h.d.DB.PingContext(r.Context())
		}},
	}
	for _, check := range checks {
		if err := check.fn(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type timerStatus struct {
	Label            string  `json:"label"`
	StartedAt        string  `json:"started_at"`
	RemainingSeconds float64 `json:"remaining_seconds"`
}

type statusResponse struct {
	Live           bool                   `json:"live"`
	LiveSince      *time.Time             `json:"live_since,omitempty"`
	LastPoll       *time.Time             `json:"last_poll,omitempty"`
	LastPollError  string                 `json:"last_poll_error,omitempty"`
	Sessions       int                    `json:"sessions"`
	AdPhase        string                 `json:"ad_phase"`
	NowPlaying     bool                   `json:"nowplaying_running"`
	Timers         map[string]timerStatus `json:"timers"`
	OverlayClients int                    `json:"overlay_clients"`
	Problems       int                    `json:"recap_problems"`
	Submissions    int                    `json:"recap_submissions"`
	CurrentProblem string                 `json:"current_problem,omitempty"`
	ChatConnected  bool                   `json:"chat_connected"`
	Tracing        bool                   `json:"tracing"`
}

// HandleStatus reports the bot's runtime state as JSON.
func (h *Handlers) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{AdPhase: "disabled", Timers: map[string]timerStatus{}, Tracing: telemetry.IsTracingEnabled()}
	if h.d.Monitor != nil {
		s := h.d.Monitor.Status()
		resp.Live = s.Live
		resp.Sessions = s.Sessions
		resp.NowPlaying = s.Poller
		resp.LastPollError = s.LastPollError
		if !s.LiveSince.IsZero() {
			resp.LiveSince = &s.LiveSince
		}
		if !s.LastPoll.IsZero() {
			resp.LastPoll = &s.LastPoll
		}
	}
	if h.d.Ads != nil {
		resp.AdPhase = h.d.Ads.Phase().String()
	}
	for name, t := range h.d.Timers {
		if a, ok := t.Current(); ok {
			resp.Timers[name] = timerStatus{
				Label:            a.Label,
				StartedAt:        a.StartedAt.UTC().Format(time.RFC3339),
				RemainingSeconds: a.Remaining().Seconds(),
			}
		}
	}
	if h.d.Overlay != nil {
		resp.OverlayClients = h.d.Overlay.Count()
	}
	if h.d.Recap != nil {
		resp.Problems, resp.Submissions = h.d.Recap.Counts()
	}
	if h.d.CurrentProblem != nil {
		resp.CurrentProblem = h.d.CurrentProblem()
	}
	if h.d.Chat != nil {
		resp.ChatConnected = h.d.Chat.Connected()
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleRecaps lists archived recaps, newest first (?limit=N, default 20).
func (h *Handlers) HandleRecaps(w http.ResponseWriter, r *http.Request) {
	if h.d.Recaps == nil {
		http.Error(w, "recap archive disabled", http.StatusNotFound)
		return
	}
	rows, err := h.d.Recaps.RecentRecaps(r.Context(), parseIntQuery(r, "limit", 20))
	if err != nil {
		slog.Error("list recaps failed", slog.Any("err", err), slog.String("component", "http"))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	type item struct {
		SessionID   string          `json:"session_id"`
		StreamStart time.Time       `json:"stream_start"`
		StreamEnd   time.Time       `json:"stream_end"`
		SinkStatus  string          `json:"sink_status"`
		Payload     json.RawMessage `json:"payload"`
	}
	out := make([]item, 0, len(rows))
	for _, row := range rows {
		out = append(out, item{row.SessionID, row.StreamStart, row.StreamEnd, row.SinkStatus, json.RawMessage(row.Payload)})
	}
	writeJSON(w, http.StatusOK, out)
}
