package result

import "time"

// Artifact is one file written for a URL.
type Artifact struct {
	URL    string   `json:"url"`
	Status Status   `json:"status"`
	File   string   `json:"file"`
	Digest string   `json:"digest"` // hex BLAKE2b-256 of the file contents
	Errors []string `json:"errors,omitempty"`
}

// RunSummary describes one campaign run.
type RunSummary struct {
	RunID      string     `json:"runId"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt time.Time  `json:"finishedAt"`
	Total      int        `json:"total"`
	Failed     int        `json:"failed"`
	Artifacts  []Artifact `json:"artifacts"`
}
