package model

import (
	"testing"
	"time"
)

func TestNewStatus(t *testing.T) {
	st := NewStatus("run-1")

	if st.Step != StepInit {
		t.Errorf("expected init step, got %s", st.Step)
	}
	if st.Message != "request received" {
		t.Errorf("expected init message, got %q", st.Message)
	}
	if st.Ready {
		t.Error("expected ready=false")
	}
	if st.RunID != "run-1" {
		t.Errorf("expected runId run-1, got %s", st.RunID)
	}
	if st.Started.IsZero() {
		t.Error("expected started timestamp")
	}
	if st.Finished != nil {
		t.Error("expected no finished timestamp")
	}
}

func TestStatusPatch_ApplyIsIdempotent(t *testing.T) {
	st := NewStatus("run-1")

	patch := StepPatch("run-1", StepDone)
	ready := true
	mp3 := "https://example.com/a.mp3"
	midi := "https://example.com/a.midi"
	finished := time.Now().UTC()
	patch.Ready = &ready
	patch.MP3URL = &mp3
	patch.MIDIURL = &midi
	patch.Finished = &finished

	patch.Apply(st)
	once := *st
	patch.Apply(st)

	if *st != once {
		t.Errorf("expected merge to be idempotent: %+v != %+v", *st, once)
	}
	if st.Step != StepDone || !st.Ready || st.MP3URL != mp3 || st.MIDIURL != midi {
		t.Errorf("unexpected final document: %+v", st)
	}
}

func TestStatusPatch_NilFieldsUntouched(t *testing.T) {
	st := NewStatus("run-1")
	started := st.Started

	StepPatch("run-1", StepGeneratingMIDI).Apply(st)

	if st.Step != StepGeneratingMIDI {
		t.Errorf("expected step to advance, got %s", st.Step)
	}
	if st.Message != StepMessages[StepGeneratingMIDI] {
		t.Errorf("expected step message, got %q", st.Message)
	}
	if st.RunID != "run-1" {
		t.Error("expected runId untouched")
	}
	if !st.Started.Equal(started) {
		t.Error("expected started untouched")
	}
}

func TestStatusPatch_RunIDReclaimsSlot(t *testing.T) {
	st := NewStatus("run-2")

	StepPatch("run-1", StepRenderingMP3).Apply(st)

	if st.RunID != "run-1" {
		t.Errorf("expected the merging run to stamp its id, got %s", st.RunID)
	}
	if st.Step != StepRenderingMP3 {
		t.Errorf("expected step rendering_mp3, got %s", st.Step)
	}
}
