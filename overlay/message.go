// Package overlay fans display messages out to connected overlay clients
// (browser sources) over websockets.
package overlay

import "encoding/json"

// Message is one server-to-client display message. The concrete types are
// Start, Stop and NowPlaying.
type Message interface {
	Command() string
}

// Start shows a countdown of Duration seconds labelled Label.
type Start struct {
	Duration int
	Label    string
}

// Stop clears the countdown.
type Stop struct{}

// NowPlaying describes the current track. When IsPlaying is false the other
// fields are omitted on the wire.
type NowPlaying struct {
	Song       string
	Artists    string
	AlbumArt   string
	ProgressMs int
	DurationMs int
	IsPlaying  bool
}

func (Start) Command() string      { return "start" }
func (Stop) Command() string       { return "stop" }
func (NowPlaying) Command() string { return "nowplaying" }

func (m Start) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Command  string `json:"command"`
		Duration int    `json:"duration"`
		Label    string `json:"label"`
	}{m.Command(), m.Duration, m.Label})
}

func (m Stop) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Command string `json:"command"`
	}{m.Command()})
}

func (m NowPlaying) MarshalJSON() ([]byte, error) {
	if !m.IsPlaying {
		return json.Marshal(struct {
			Command   string `json:"command"`
			IsPlaying bool   `json:"is_playing"`
		}{m.Command(), false})
	}
	return json.Marshal(struct {
		Command    string `json:"command"`
		Song       string `json:"song"`
		Artists    string `json:"artists"`
		AlbumArt   string `json:"album_art"`
		ProgressMs int    `json:"progress_ms"`
		DurationMs int    `json:"duration_ms"`
		IsPlaying  bool   `json:"is_playing"`
	}{m.Command(), m.Song, m.Artists, m.AlbumArt, m.ProgressMs, m.DurationMs, true})
}
