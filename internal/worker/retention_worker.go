package worker

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/midistudio/api/internal/client"
	"github.com/midistudio/api/internal/model"
)

// RetentionWorker deletes expired artifact pairs and their metadata
// records. It runs on a schedule, independent of and concurrent with any
// in-flight pipeline runs; a fresh run's record is never expired, so the
// sweep cannot race with it.
type RetentionWorker struct {
	storage client.StorageClient
	now     func() time.Time
}

// NewRetentionWorker creates a new retention sweep worker.
func NewRetentionWorker(storage client.StorageClient) *RetentionWorker {
	return &RetentionWorker{
		storage: storage,
		now:     time.Now,
	}
}

// ProcessTask scans every user's metadata record and deletes the expired
// ones along with their artifacts. A failure on one record never aborts
// the scan for the rest.
func (w *RetentionWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if w.storage == nil {
		log.Printf("[Retention] storage not configured, skipping sweep")
		return nil
	}

	keys, err := w.storage.List(ctx, "users/")
	if err != nil {
		log.Printf("[Retention] failed to list metadata: %v", err)
		return err
	}

	var swept, kept int
	for _, key := range keys {
		if !strings.HasSuffix(key, "/temp/"+model.MetadataFileName) {
			continue
		}
		expired, err := w.sweepRecord(ctx, key)
		if err != nil {
			log.Printf("[Retention] failed to sweep %s: %v", key, err)
			continue
		}
		if expired {
			swept++
		} else {
			kept++
		}
	}

	log.Printf("[Retention] sweep complete: %d expired, %d retained", swept, kept)
	return nil
}

// sweepRecord handles one metadata record. Deletion order is midi, mp3,
// then the record itself; a crash mid-sweep leaves a record pointing at
// already-deleted paths, which the next sweep finishes harmlessly.
func (w *RetentionWorker) sweepRecord(ctx context.Context, metaKey string) (bool, error) {
	data, err := w.storage.Download(ctx, metaKey)
	if err != nil {
		return false, err
	}

	var record model.ArtifactRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return false, err
	}

	if !record.Expired(w.now()) {
		return false, nil
	}

	if err := w.storage.Delete(ctx, record.MIDIStoragePath); err != nil {
		log.Printf("[Retention] failed to delete %s: %v", record.MIDIStoragePath, err)
	}
	if err := w.storage.Delete(ctx, record.MP3StoragePath); err != nil {
		log.Printf("[Retention] failed to delete %s: %v", record.MP3StoragePath, err)
	}
	if err := w.storage.Delete(ctx, metaKey); err != nil {
		return false, err
	}

	return true, nil
}
