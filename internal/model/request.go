package model

// GenerationRequest carries the musical parameters for one generation run.
// Only UserID is required; every musical field is defaulted when absent.
// The struct is immutable once accepted by the intake endpoint.
type GenerationRequest struct {
	UserID       string `json:"userId" validate:"required"`
	Key          string `json:"key,omitempty"`
	Scale        string `json:"scale,omitempty"`
	Tempo        int    `json:"tempo,omitempty"`
	Mood         string `json:"mood,omitempty"`
	Genre        string `json:"genre,omitempty"`
	PhraseType   string `json:"phraseType,omitempty"`
	VoiceType    string `json:"voiceType,omitempty"`
	OctaveRange  string `json:"octaveRange,omitempty"`
	MIDILength   string `json:"midiLength,omitempty"`
	Beat         string `json:"beat,omitempty"`
	UserFileName string `json:"userFileName,omitempty"`
}

// Parameter defaults matching the studio client's form defaults.
const (
	DefaultKey        = "C"
	DefaultScale      = "major"
	DefaultBeat       = "4/4"
	DefaultTempo      = 120
	DefaultMIDILength = "Medium"
	unsetOption       = "N/A"
)

// ApplyDefaults fills in every optional musical parameter that the caller
// left empty.
func (r *GenerationRequest) ApplyDefaults() {
	if r.Key == "" {
		r.Key = DefaultKey
	}
	if r.Scale == "" {
		r.Scale = DefaultScale
	}
	if r.Beat == "" {
		r.Beat = DefaultBeat
	}
	if r.Tempo == 0 {
		r.Tempo = DefaultTempo
	}
	if r.Mood == "" {
		r.Mood = unsetOption
	}
	if r.Genre == "" {
		r.Genre = unsetOption
	}
	if r.PhraseType == "" {
		r.PhraseType = unsetOption
	}
	if r.VoiceType == "" {
		r.VoiceType = unsetOption
	}
	if r.OctaveRange == "" {
		r.OctaveRange = unsetOption
	}
	if r.MIDILength == "" {
		r.MIDILength = DefaultMIDILength
	}
}

// MaxDurationSeconds maps the requested MIDI length onto the melody
// service's duration cap.
func (r *GenerationRequest) MaxDurationSeconds() int {
	switch r.MIDILength {
	case "Short":
		return 30
	case "Long":
		return 120
	default:
		return 60
	}
}

// GenerateResponse is the 202 body returned by the intake endpoint.
type GenerateResponse struct {
	Message string `json:"message"`
	RunID   string `json:"runId"`
}

// TaskMessage is the queued payload consumed by the pipeline worker.
type TaskMessage struct {
	RunID    string            `json:"runId"`
	BaseName string            `json:"baseName"`
	Request  GenerationRequest `json:"request"`
}
