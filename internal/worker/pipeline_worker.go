package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/midistudio/api/internal/client"
	"github.com/midistudio/api/internal/model"
	"github.com/midistudio/api/internal/status"
)

// transport errors are retried this many extra times with exponential
// backoff; upstream non-2xx responses are never retried.
const (
	maxTransportRetries = 2
	retryBaseDelay      = 500 * time.Millisecond
)

// PipelineWorker runs the orchestration state machine for one dequeued
// generation task. Steps execute strictly in order; the status slot is
// updated before each step so observers always see the step currently
// executing. Any failure is terminal for the run and reported only
// through the status slot.
type PipelineWorker struct {
	store    status.Store
	storage  client.StorageClient
	composer *client.ComposerClient
	melody   client.MelodyGenerator
	renderer client.AudioRenderer

	melodyTimeout time.Duration
	renderTimeout time.Duration
	artifactTTL   time.Duration
}

// NewPipelineWorker creates a new pipeline worker. composer may be nil;
// the parameter prompt is then used as the melody sketch directly. Each
// external service gets its own per-call timeout; the composer shares
// the melody timeout since both run inside the generating_midi step.
func NewPipelineWorker(
	store status.Store,
	storage client.StorageClient,
	composer *client.ComposerClient,
	melody client.MelodyGenerator,
	renderer client.AudioRenderer,
	melodyTimeout time.Duration,
	renderTimeout time.Duration,
	artifactTTL time.Duration,
) *PipelineWorker {
	return &PipelineWorker{
		store:         store,
		storage:       storage,
		composer:      composer,
		melody:        melody,
		renderer:      renderer,
		melodyTimeout: melodyTimeout,
		renderTimeout: renderTimeout,
		artifactTTL:   artifactTTL,
	}
}

// ProcessTask handles one generation task end to end.
func (w *PipelineWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var msg model.TaskMessage
	if err := json.Unmarshal(t.Payload(), &msg); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	userID := msg.Request.UserID
	log.Printf("[Pipeline] run %s starting for user %s", msg.RunID, userID)

	if w.storage == nil {
		return w.failRun(ctx, userID, msg.RunID, fmt.Errorf("artifact storage not configured"))
	}

	// generating_midi
	w.setStep(ctx, userID, msg.RunID, model.StepGeneratingMIDI)
	midiData, err := w.generateMIDI(ctx, &msg.Request)
	if err != nil {
		return w.failRun(ctx, userID, msg.RunID, err)
	}

	// rendering_mp3
	w.setStep(ctx, userID, msg.RunID, model.StepRenderingMP3)
	mp3Data, err := w.renderMP3(ctx, msg.BaseName, midiData)
	if err != nil {
		return w.failRun(ctx, userID, msg.RunID, err)
	}

	// uploading_midi
	w.setStep(ctx, userID, msg.RunID, model.StepUploadingMIDI)
	midiPath := model.MIDIPath(userID, msg.BaseName)
	w.cleanupTemp(ctx, userID, model.ExtMIDI)
	if err := w.storage.Upload(ctx, midiPath, bytes.NewReader(midiData), "audio/midi"); err != nil {
		return w.failRun(ctx, userID, msg.RunID, err)
	}

	// uploading_mp3
	w.setStep(ctx, userID, msg.RunID, model.StepUploadingMP3)
	mp3Path := model.MP3Path(userID, msg.BaseName)
	w.cleanupTemp(ctx, userID, model.ExtMP3)
	if err := w.storage.Upload(ctx, mp3Path, bytes.NewReader(mp3Data), "audio/mpeg"); err != nil {
		return w.failRun(ctx, userID, msg.RunID, err)
	}

	// generating_urls
	w.setStep(ctx, userID, msg.RunID, model.StepGeneratingURLs)
	midiURL, err := w.storage.SignedURL(ctx, midiPath, w.artifactTTL)
	if err != nil {
		return w.failRun(ctx, userID, msg.RunID, err)
	}
	mp3URL, err := w.storage.SignedURL(ctx, mp3Path, w.artifactTTL)
	if err != nil {
		return w.failRun(ctx, userID, msg.RunID, err)
	}

	if err := w.writeMetadata(ctx, &msg, midiPath, mp3Path); err != nil {
		return w.failRun(ctx, userID, msg.RunID, err)
	}

	// done: idempotent final merge, safe under duplicate delivery.
	if err := w.completeRun(ctx, userID, msg.RunID, mp3URL, midiURL); err != nil {
		log.Printf("[Pipeline] run %s: failed to write final status: %v", msg.RunID, err)
		return err
	}

	log.Printf("[Pipeline] run %s completed for user %s", msg.RunID, userID)
	return nil
}

// generateMIDI runs the composition sketch step and the melody service
// call, returning the raw note-sequence payload.
func (w *PipelineWorker) generateMIDI(ctx context.Context, req *model.GenerationRequest) ([]byte, error) {
	sketch := client.ComposePrompt(req)
	if w.composer.IsConfigured() {
		callCtx, cancel := context.WithTimeout(ctx, w.melodyTimeout)
		composed, err := w.composer.ComposeSketch(callCtx, req)
		cancel()
		if err != nil {
			// The sketch is an enrichment on top of the raw
			// parameters; fall back to them rather than failing
			// the run.
			log.Printf("[Pipeline] composer failed, using parameter sketch: %v", err)
		} else {
			sketch = composed
		}
	}

	melodyReq := &client.MelodyRequest{
		TextInput:          sketch,
		Tempo:              req.Tempo,
		Structure:          req.PhraseType,
		MaxDurationSeconds: req.MaxDurationSeconds(),
	}

	var midi []byte
	err := w.callWithRetry(ctx, w.melodyTimeout, func(callCtx context.Context) error {
		var callErr error
		midi, callErr = w.melody.GenerateMIDI(callCtx, melodyReq)
		return callErr
	})
	return midi, err
}

func (w *PipelineWorker) renderMP3(ctx context.Context, baseName string, midi []byte) ([]byte, error) {
	var mp3 []byte
	err := w.callWithRetry(ctx, w.renderTimeout, func(callCtx context.Context) error {
		var callErr error
		mp3, callErr = w.renderer.RenderMP3(callCtx, baseName+model.ExtMIDI, midi)
		return callErr
	})
	return mp3, err
}

// callWithRetry bounds each attempt with the given timeout and retries
// transport failures with exponential backoff. An UpstreamError is an
// application-level rejection and is returned immediately.
func (w *PipelineWorker) callWithRetry(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= maxTransportRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}

		var upstream *client.UpstreamError
		if errors.As(err, &upstream) {
			return err
		}
		lastErr = err
		log.Printf("[Pipeline] transport error (attempt %d/%d): %v", attempt+1, maxTransportRetries+1, err)
	}
	return lastErr
}

// cleanupTemp deletes any pre-existing artifact with the given extension
// under the user's temp prefix, bounding per-user temp storage to one
// artifact pair. Failures are logged, never fatal.
func (w *PipelineWorker) cleanupTemp(ctx context.Context, userID, ext string) {
	keys, err := w.storage.List(ctx, model.TempPrefix(userID))
	if err != nil {
		log.Printf("[Pipeline] failed to list temp files for %s: %v", userID, err)
		return
	}
	for _, key := range keys {
		if !strings.HasSuffix(key, ext) {
			continue
		}
		if err := w.storage.Delete(ctx, key); err != nil {
			log.Printf("[Pipeline] failed to delete stale artifact %s: %v", key, err)
		}
	}
}

// writeMetadata stores the artifact record next to the artifacts, with a
// fixed TTL from creation time. The retention sweeper is the only deleter.
func (w *PipelineWorker) writeMetadata(ctx context.Context, msg *model.TaskMessage, midiPath, mp3Path string) error {
	now := time.Now().UTC()
	record := model.ArtifactRecord{
		RunID:           msg.RunID,
		UserID:          msg.Request.UserID,
		Created:         now,
		UserFileName:    msg.Request.UserFileName,
		Expiration:      now.Add(w.artifactTTL),
		MIDIStoragePath: midiPath,
		MP3StoragePath:  mp3Path,
	}

	data, err := json.Marshal(&record)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact record: %w", err)
	}

	metaPath := model.MetadataPath(msg.Request.UserID)
	if err := w.storage.Upload(ctx, metaPath, bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("failed to write artifact record: %w", err)
	}
	return nil
}

// setStep writes the step transition before the step executes. A write
// failure is logged but does not stop the run; the slot is a progress
// feed, not a dependency of the work itself.
func (w *PipelineWorker) setStep(ctx context.Context, userID, runID string, step model.Step) {
	if err := w.store.Merge(ctx, userID, model.StepPatch(runID, step)); err != nil {
		log.Printf("[Pipeline] failed to update status for %s: %v", userID, err)
	}
}

// completeRun stamps the full terminal result, runId included, so the
// slot never pairs one run's id with another run's URLs even when a
// newer request overwrote it mid-run.
func (w *PipelineWorker) completeRun(ctx context.Context, userID, runID, mp3URL, midiURL string) error {
	patch := model.StepPatch(runID, model.StepDone)
	ready := true
	noError := ""
	now := time.Now().UTC()
	patch.Ready = &ready
	patch.MP3URL = &mp3URL
	patch.MIDIURL = &midiURL
	patch.Error = &noError
	patch.Finished = &now
	return w.store.Merge(ctx, userID, patch)
}

// failRun records the terminal error state with the upstream message
// captured verbatim. The task is not requeued; the returned error only
// marks the task failed in the queue's bookkeeping.
func (w *PipelineWorker) failRun(ctx context.Context, userID, runID string, cause error) error {
	log.Printf("[Pipeline] run %s failed: %v", runID, cause)

	patch := model.StepPatch(runID, model.StepError)
	ready := false
	errMsg := cause.Error()
	noURL := ""
	now := time.Now().UTC()
	patch.Ready = &ready
	patch.Error = &errMsg
	patch.MP3URL = &noURL
	patch.MIDIURL = &noURL
	patch.Finished = &now

	if err := w.store.Merge(ctx, userID, patch); err != nil {
		log.Printf("[Pipeline] run %s: failed to record error status: %v", runID, err)
	}
	return cause
}
