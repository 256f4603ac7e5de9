package carrier

import (
	"net/http"
	"strconv"
)

// StatusWebhook captures the subset of call status callback fields we care
// about. The carrier sends application/x-www-form-urlencoded; any field may be
// absent depending on the lifecycle moment that triggered the delivery.
type StatusWebhook struct {
	CallSid                  string
	CallStatus               string
	CallDuration             *int
	AnsweredBy               string
	MachineDetectionDuration *int
}

// RecordingWebhook captures the recording status callback fields.
type RecordingWebhook struct {
	RecordingSid      string
	RecordingURL      string
	RecordingStatus   string
	RecordingDuration int
}

// ParseStatusWebhook reads a status callback from the request form.
func ParseStatusWebhook(r *http.Request) (StatusWebhook, error) {
	if err := r.ParseForm(); err != nil {
		return StatusWebhook{}, err
	}
	return StatusWebhook{
		CallSid:                  r.PostFormValue("CallSid"),
		CallStatus:               r.PostFormValue("CallStatus"),
		CallDuration:             optionalInt(r.PostFormValue("CallDuration")),
		AnsweredBy:               r.PostFormValue("AnsweredBy"),
		MachineDetectionDuration: optionalInt(r.PostFormValue("MachineDetectionDuration")),
	}, nil
}

// ParseRecordingWebhook reads a recording callback from the request form.
func ParseRecordingWebhook(r *http.Request) (RecordingWebhook, error) {
	if err := r.ParseForm(); err != nil {
		return RecordingWebhook{}, err
	}
	duration := 0
	if v := optionalInt(r.PostFormValue("RecordingDuration")); v != nil {
		duration = *v
	}
	return RecordingWebhook{
		RecordingSid:      r.PostFormValue("RecordingSid"),
		RecordingURL:      r.PostFormValue("RecordingUrl"),
		RecordingStatus:   r.PostFormValue("RecordingStatus"),
		RecordingDuration: duration,
	}, nil
}

func optionalInt(value string) *int {
	if value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return nil
	}
	return &n
}
