package model

import "time"

// SampleCreateRequest represents the request to start a sample pack job
type SampleCreateRequest struct {
	ImageBase64 string `json:"image_base64" validate:"required,base64"`
}

// SampleCreateResponse is returned as soon as the job is accepted
type SampleCreateResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// SampleStatusResponse represents the observable state of a sample pack job
type SampleStatusResponse struct {
	JobID            string     `json:"job_id"`
	Status           JobStatus  `json:"status"`
	Progress         int        `json:"progress"`
	CurrentStep      string     `json:"current_step"`
	SamplesGenerated int        `json:"samples_generated"`
	TotalSamples     int        `json:"total_samples"`
	Error            *string    `json:"error,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// SampleCancelResponse represents the response when canceling a job
type SampleCancelResponse struct {
	Success bool      `json:"success"`
	JobID   string    `json:"job_id"`
	Status  JobStatus `json:"status"`
}

// StatusResponseFromSnapshot maps a job snapshot onto the API shape.
func StatusResponseFromSnapshot(s JobSnapshot) *SampleStatusResponse {
	resp := &SampleStatusResponse{
		JobID:            s.ID,
		Status:           s.Status,
		Progress:         s.Progress,
		CurrentStep:      s.CurrentStep,
		SamplesGenerated: s.SamplesGenerated,
		TotalSamples:     s.TotalSamples,
		CreatedAt:        s.CreatedAt,
		StartedAt:        s.StartedAt,
		CompletedAt:      s.CompletedAt,
	}
	if s.Error != "" {
		msg := s.Error
		resp.Error = &msg
	}
	return resp
}

// ManifestEntry pairs an archived sample file with the description that produced it
type ManifestEntry struct {
	Filename    string `json:"filename"`
	Description string `json:"description"`
}

// Manifest is written to metadata.json inside every archive
type Manifest struct {
	Samples []ManifestEntry `json:"samples"`
}

// Waveform is one synthesized audio buffer as interleaved PCM integers.
type Waveform struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Data       []int
}

// Duration returns the playing time of the buffer.
func (w *Waveform) Duration() time.Duration {
	if w == nil || w.SampleRate <= 0 || w.Channels <= 0 {
		return 0
	}
	frames := len(w.Data) / w.Channels
	return time.Duration(frames) * time.Second / time.Duration(w.SampleRate)
}
