// Package storage provides the recording archive: classified call recordings
// are copied from the carrier's short-lived storage into an object store the
// operator controls.
package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"callscreen_backend/internal/carrier"
	"callscreen_backend/internal/events"
	"callscreen_backend/platform/config"
	"callscreen_backend/platform/logger"
)

// Archiver copies call recordings into a MinIO bucket after classification.
// Archiving is best effort: a failed copy is logged, never retried, and never
// affects the call record.
type Archiver struct {
	client  *minio.Client
	fetcher carrier.RecordingFetcher
	bucket  string
	log     *logger.Logger
}

// NewArchiver creates the recording archiver.
func NewArchiver(cfg config.StorageConfig, fetcher carrier.RecordingFetcher, log *logger.Logger) (*Archiver, error) {
	if !cfg.IsRecordingArchiveEnabled() {
		return nil, fmt.Errorf("recording archive is not configured")
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &Archiver{
		client:  client,
		fetcher: fetcher,
		bucket:  cfg.GetRecordingBucket(),
		log:     log,
	}, nil
}

// EnsureBucketExists creates the recording bucket if it doesn't exist.
func (a *Archiver) EnsureBucketExists(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", a.bucket, err)
		}
	}
	return nil
}

// Subscribe registers the archiver on the event bus. Archiving runs on the
// bus's async delivery, off the detection path.
func (a *Archiver) Subscribe(bus events.Bus) {
	bus.Subscribe(events.CallClassified{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		e, ok := event.(events.CallClassified)
		if !ok {
			return nil
		}
		if e.RecordingURL == "" {
			return nil
		}
		if err := a.Archive(ctx, e.CallID.String(), e.RecordingURL); err != nil {
			a.log.WithCallID(e.CallID.String()).Warn("recording archive failed", "error", err)
		}
		return nil
	}))
}

// Archive downloads one recording and stores it under the call's ID.
func (a *Archiver) Archive(ctx context.Context, callID, recordingURL string) error {
	audio, err := a.fetcher.FetchRecording(ctx, recordingURL)
	if err != nil {
		return fmt.Errorf("fetch recording: %w", err)
	}

	key := fmt.Sprintf("recordings/%s.mp3", callID)
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(audio), int64(len(audio)), minio.PutObjectOptions{
		ContentType: "audio/mpeg",
	})
	if err != nil {
		return fmt.Errorf("store recording %s: %w", key, err)
	}

	a.log.WithCallID(callID).Info("recording archived", "bucket", a.bucket, "key", key)
	return nil
}
