package model

import (
	"fmt"
	"time"
)

// ArtifactRecord is the metadata sidecar written at the end of a successful
// run, stored next to the artifacts it describes. The retention sweeper is
// the only component that deletes it.
type ArtifactRecord struct {
	RunID           string    `json:"runId"`
	UserID          string    `json:"userId"`
	Created         time.Time `json:"created"`
	UserFileName    string    `json:"userFileName,omitempty"`
	Expiration      time.Time `json:"expiration"`
	MIDIStoragePath string    `json:"midiStoragePath"`
	MP3StoragePath  string    `json:"mp3StoragePath"`
}

// Expired reports whether the record's retention window has passed.
func (r *ArtifactRecord) Expired(now time.Time) bool {
	return !r.Expiration.After(now)
}

const (
	ExtMIDI = ".midi"
	ExtMP3  = ".mp3"

	// MetadataFileName is the name of the per-user metadata object.
	MetadataFileName = "metadata.json"
)

// TempPrefix is the per-user storage prefix holding at most one generation
// artifact pair plus its metadata record.
func TempPrefix(userID string) string {
	return fmt.Sprintf("users/%s/temp/", userID)
}

// MIDIPath returns the storage key for a run's note-sequence artifact.
func MIDIPath(userID, baseName string) string {
	return TempPrefix(userID) + baseName + ExtMIDI
}

// MP3Path returns the storage key for a run's rendered audio artifact.
func MP3Path(userID, baseName string) string {
	return TempPrefix(userID) + baseName + ExtMP3
}

// MetadataPath returns the storage key of the user's artifact record.
func MetadataPath(userID string) string {
	return TempPrefix(userID) + MetadataFileName
}
