package model

import "testing"

func TestApplyDefaults(t *testing.T) {
	req := GenerationRequest{UserID: "u1"}
	req.ApplyDefaults()

	if req.Key != "C" || req.Scale != "major" || req.Beat != "4/4" {
		t.Errorf("unexpected key/scale/beat defaults: %s %s %s", req.Key, req.Scale, req.Beat)
	}
	if req.Tempo != 120 {
		t.Errorf("expected tempo 120, got %d", req.Tempo)
	}
	if req.Mood != "N/A" || req.Genre != "N/A" || req.PhraseType != "N/A" {
		t.Errorf("expected N/A fallbacks, got %s %s %s", req.Mood, req.Genre, req.PhraseType)
	}
	if req.MIDILength != "Medium" {
		t.Errorf("expected Medium length, got %s", req.MIDILength)
	}
}

func TestApplyDefaults_KeepsProvidedValues(t *testing.T) {
	req := GenerationRequest{
		UserID: "u1",
		Key:    "G",
		Tempo:  90,
		Genre:  "jazz",
	}
	req.ApplyDefaults()

	if req.Key != "G" || req.Tempo != 90 || req.Genre != "jazz" {
		t.Errorf("expected provided values kept: %s %d %s", req.Key, req.Tempo, req.Genre)
	}
	if req.Scale != "major" {
		t.Errorf("expected default scale, got %s", req.Scale)
	}
}

func TestMaxDurationSeconds(t *testing.T) {
	tests := []struct {
		length string
		want   int
	}{
		{"Short", 30},
		{"Medium", 60},
		{"Long", 120},
		{"N/A", 60},
	}

	for _, tt := range tests {
		req := GenerationRequest{MIDILength: tt.length}
		if got := req.MaxDurationSeconds(); got != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.length, tt.want, got)
		}
	}
}

func TestArtifactPaths(t *testing.T) {
	if got := MIDIPath("u1", "generation-42"); got != "users/u1/temp/generation-42.midi" {
		t.Errorf("unexpected MIDI path %s", got)
	}
	if got := MP3Path("u1", "generation-42"); got != "users/u1/temp/generation-42.mp3" {
		t.Errorf("unexpected MP3 path %s", got)
	}
	if got := MetadataPath("u1"); got != "users/u1/temp/metadata.json" {
		t.Errorf("unexpected metadata path %s", got)
	}
}
