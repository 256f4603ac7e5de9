// Package scheduler provides the asynq-backed task queue that runs recording
// analysis outside the webhook request path.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskAnalyzeRecording = "calls.analyze_recording"

type AnalyzeRecordingPayload struct {
	CallID            string `json:"callId"`
	RecordingURL      string `json:"recordingUrl"`
	RecordingDuration int    `json:"recordingDuration"`
}

func NewAnalyzeRecordingTask(payload AnalyzeRecordingPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAnalyzeRecording, data), nil
}

func ParseAnalyzeRecordingPayload(task *asynq.Task) (AnalyzeRecordingPayload, error) {
	var payload AnalyzeRecordingPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return AnalyzeRecordingPayload{}, err
	}
	return payload, nil
}
