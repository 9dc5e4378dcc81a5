package model

import "time"

// Step names one phase of the orchestration state machine.
type Step string

const (
	StepInit           Step = "init"
	StepGeneratingMIDI Step = "generating_midi"
	StepRenderingMP3   Step = "rendering_mp3"
	StepUploadingMIDI  Step = "uploading_midi"
	StepUploadingMP3   Step = "uploading_mp3"
	StepGeneratingURLs Step = "generating_urls"
	StepDone           Step = "done"
	StepError          Step = "error"
)

// StepMessages maps each step to the human-readable progress text shown in
// the studio client while the pipeline runs.
var StepMessages = map[Step]string{
	StepInit:           "request received",
	StepGeneratingMIDI: "Composing musical information...",
	StepRenderingMP3:   "Rendering audio...",
	StepUploadingMIDI:  "Saving MIDI file...",
	StepUploadingMP3:   "Saving audio...",
	StepGeneratingURLs: "Generating download links...",
	StepDone:           "Your track is ready.",
	StepError:          "Error during generation. Please try again.",
}

// OrchestrationStatus is the single mutable per-user status slot. A new
// generation request overwrites the previous document for that user,
// regardless of whether the earlier run is still executing.
type OrchestrationStatus struct {
	RunID    string     `json:"runId"`
	Step     Step       `json:"step"`
	Message  string     `json:"message"`
	Ready    bool       `json:"ready"`
	MP3URL   string     `json:"mp3Url,omitempty"`
	MIDIURL  string     `json:"midiUrl,omitempty"`
	Error    string     `json:"error,omitempty"`
	Started  time.Time  `json:"started"`
	Finished *time.Time `json:"finished,omitempty"`
}

// NewStatus returns the initial slot document written by the intake path.
func NewStatus(runID string) *OrchestrationStatus {
	return &OrchestrationStatus{
		RunID:   runID,
		Step:    StepInit,
		Message: StepMessages[StepInit],
		Ready:   false,
		Started: time.Now().UTC(),
	}
}

// StatusPatch is a partial status update. Nil fields are left untouched by
// a merge; applying the same patch twice yields the same document.
type StatusPatch struct {
	RunID    *string
	Step     *Step
	Message  *string
	Ready    *bool
	MP3URL   *string
	MIDIURL  *string
	Error    *string
	Finished *time.Time
}

// Apply merges the patch into the status document in place.
func (p *StatusPatch) Apply(st *OrchestrationStatus) {
	if p.RunID != nil {
		st.RunID = *p.RunID
	}
	if p.Step != nil {
		st.Step = *p.Step
	}
	if p.Message != nil {
		st.Message = *p.Message
	}
	if p.Ready != nil {
		st.Ready = *p.Ready
	}
	if p.MP3URL != nil {
		st.MP3URL = *p.MP3URL
	}
	if p.MIDIURL != nil {
		st.MIDIURL = *p.MIDIURL
	}
	if p.Error != nil {
		st.Error = *p.Error
	}
	if p.Finished != nil {
		st.Finished = p.Finished
	}
}

// StepPatch builds the patch written before a pipeline step begins, so an
// observer always sees the step that is currently executing. Every step
// merge stamps the owning run: when a newer request has overwritten the
// slot, the runId tells the observer which run the fields belong to.
func StepPatch(runID string, step Step) *StatusPatch {
	msg := StepMessages[step]
	return &StatusPatch{RunID: &runID, Step: &step, Message: &msg}
}
