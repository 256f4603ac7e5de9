package scheduler

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"callscreen_backend/platform/config"
	"callscreen_backend/platform/logger"
)

// RecordingProcessor runs a detection pass for one recording. The calls
// reconciler implements it.
type RecordingProcessor interface {
	ProcessRecording(ctx context.Context, callID uuid.UUID, recordingURL string, durationSeconds int) error
}

type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor RecordingProcessor
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, processor RecordingProcessor, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL)
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		mux:       mux,
		processor: processor,
		log:       log,
	}

	mux.HandleFunc(TaskAnalyzeRecording, w.handleAnalyzeRecording)

	return w, nil
}

func (w *Worker) handleAnalyzeRecording(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseAnalyzeRecordingPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	callID, err := uuid.Parse(payload.CallID)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	if err := w.processor.ProcessRecording(ctx, callID, payload.RecordingURL, payload.RecordingDuration); err != nil {
		w.log.WithCallID(payload.CallID).Error("recording analysis failed", "error", err)
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
