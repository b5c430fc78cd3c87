package models

import "time"

// Status strings are part of the wire contract: clients poll them verbatim.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusStarting    Status = "Starting"
	StatusDownloading Status = "Downloading file..."
	StatusCompressing Status = "Compressing file"
	StatusConverting  Status = "Converting file"
	StatusUploading   Status = "Uploading result"
	StatusDone        Status = "done"
	StatusError       Status = "error"
	StatusCancelled   Status = "cancelled"
)

// Progress checkpoints reported alongside each status.
const (
	ProgressQueued      = 0
	ProgressStarting    = 5
	ProgressDownloading = 10
	ProgressWorking     = 20
	ProgressUploading   = 85
	ProgressDone        = 100
)

// Terminal reports whether no further transition may happen.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError || s == StatusCancelled
}

// Cancellable reports whether a cancel request may still take effect.
func (s Status) Cancellable() bool {
	return s == StatusQueued || s == StatusStarting
}

// TerminalStatuses lists the statuses a record never leaves.
var TerminalStatuses = []Status{StatusDone, StatusError, StatusCancelled}

type Action string

const (
	ActionCompress Action = "compress"
	ActionConvert  Action = "convert"
)

// Job is one unit of requested work.
type Job struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Action     Action    `json:"action"`
	Target     int       `json:"target"`
	ToFormat   string    `json:"to_format,omitempty"`
	InputPath  string    `json:"input_path"`
	Status     Status    `json:"status"`
	Progress   int       `json:"progress"`
	OutputPath string    `json:"output_path,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Patch is a partial update of a job. Nil fields are left untouched.
type Patch struct {
	Status     *Status
	Progress   *int
	OutputPath *string
}

// StatusPatch builds the common status+progress update.
func StatusPatch(status Status, progress int) Patch {
	return Patch{Status: &status, Progress: &progress}
}

// DonePatch sets done, 100 and the output key in one update so that
// output_path is never visible without the done status.
func DonePatch(outputPath string) Patch {
	p := StatusPatch(StatusDone, ProgressDone)
	p.OutputPath = &outputPath
	return p
}

// Apply copies the non-nil fields of p onto j.
func (p Patch) Apply(j *Job) {
	if p.Status != nil {
		j.Status = *p.Status
	}
	if p.Progress != nil {
		j.Progress = *p.Progress
	}
	if p.OutputPath != nil {
		j.OutputPath = *p.OutputPath
	}
}
