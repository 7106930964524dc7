// Package protocol defines the JSON messages exchanged on the control bus.
package protocol

import "time"

// Command subjects, relative to the configured prefix.
const (
	SubjectParse      = "cmd.parse"
	SubjectLoad       = "cmd.load"
	SubjectLoadLegacy = "cmd.load_legacy"
	SubjectSave       = "cmd.save"
	SubjectSaveLegacy = "cmd.save_legacy"
	SubjectRender     = "cmd.render"
	SubjectPlay       = "cmd.play"
	SubjectStop       = "cmd.stop"
	SubjectVoice      = "cmd.voice"
	SubjectSpeed      = "cmd.speed"
	SubjectExport     = "cmd.export"
	SubjectState      = "cmd.state"

	// SubjectStatus carries a Status after every state change.
	SubjectStatus = "status"
)

// Subject joins prefix and a relative subject.
func Subject(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// ParseRequest asks the session to parse spec text or free text.
type ParseRequest struct {
	Text string `json:"text"`
}

// PathRequest names a file for load, save, render and export commands.
type PathRequest struct {
	Path string `json:"path"`
}

// VoiceRequest selects a registered voice.
type VoiceRequest struct {
	Voice string `json:"voice"`
}

// SpeedRequest sets the render speed factor.
type SpeedRequest struct {
	Speed float64 `json:"speed"`
}

// Reply answers every command.
type Reply struct {
	OK       bool    `json:"ok"`
	Error    string  `json:"error,omitempty"`
	Code     string  `json:"code,omitempty"`
	Status   *Status `json:"status,omitempty"`
	Readable string  `json:"readable,omitempty"`
}

// Error codes carried in Reply.Code.
const (
	CodeBadRequest     = "bad_request"
	CodeParse          = "parse_error"
	CodeCorrupt        = "corrupt_bytecode"
	CodeNotFound       = "not_found"
	CodeSynthesis      = "synthesis_failed"
	CodeEmptyStream    = "empty_stream"
	CodeNoSpecs        = "no_specs"
	CodeNotRendered    = "not_rendered"
	CodeAlreadyPlaying = "already_playing"
	CodeBusy           = "busy"
	CodeUnknownVoice   = "unknown_voice"
	CodeInvalidSpeed   = "invalid_speed"
	CodeInternal       = "internal"
)

// Status is the observable session state.
type Status struct {
	SessionID    string    `json:"session_id"`
	Phase        string    `json:"phase"`
	Specs        int       `json:"specs"`
	SpecDuration float64   `json:"spec_duration"`
	Voice        string    `json:"voice"`
	Speed        float64   `json:"speed"`
	SampleRate   int       `json:"sample_rate"`
	Samples      int       `json:"samples"`
	AudioSeconds float64   `json:"audio_seconds"`
	Playing      bool      `json:"playing"`
	Rendering    bool      `json:"rendering"`
	Timestamp    time.Time `json:"timestamp"`
}
