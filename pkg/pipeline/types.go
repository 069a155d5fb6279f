package pipeline

import "time"

// DetectRequest is one image-detection job
type DetectRequest struct {
	Job                  string `json:"job,omitempty" validate:"omitempty,oneof=detect_image"`
	Channel              string `json:"channel,omitempty" validate:"omitempty,max=128,excludesall=/\\"`
	Timestamp            int64  `json:"timestamp,omitempty" validate:"gte=0"`
	IsStoreDetectedImage *bool  `json:"is_store_detected_image,omitempty"`
	RawImagePath         string `json:"raw_image_path,omitempty"`
}

// DetectResponse is returned when a job is accepted
type DetectResponse struct {
	RunID           string `json:"run_id"`
	DedupeSeenCount int    `json:"dedupe_seen_count"`
}

// FeedbackRequest reports a box that was not a real detection
type FeedbackRequest struct {
	Channel    string `json:"channel" validate:"required,max=128"`
	Label      string `json:"label" validate:"required,max=64"`
	XMin       int    `json:"x_min" validate:"gte=0"`
	YMin       int    `json:"y_min" validate:"gte=0"`
	XMax       int    `json:"x_max" validate:"gtfield=XMin"`
	YMax       int    `json:"y_max" validate:"gtfield=YMin"`
	ReportedAt int64  `json:"reported_at,omitempty" validate:"gte=0"`
}

// JobType constants
const (
	JobDetectImage = "detect_image"
)

// DefaultChannel is used when a job names no channel
const DefaultChannel = "demo"

// WithDefaults fills the job name, channel and timestamp
func (r DetectRequest) WithDefaults(now time.Time) DetectRequest {
	if r.Job == "" {
		r.Job = JobDetectImage
	}
	if r.Channel == "" {
		r.Channel = DefaultChannel
	}
	if r.Timestamp == 0 {
		r.Timestamp = now.Unix()
	}
	return r
}

// StoreDetectedImage reports whether an annotated copy should be written.
// Defaults to true.
func (r DetectRequest) StoreDetectedImage() bool {
	return r.IsStoreDetectedImage == nil || *r.IsStoreDetectedImage
}

// Bool returns a pointer to b
func Bool(b bool) *bool { return &b }
