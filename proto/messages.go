package proto

// GetRunRequest asks for one run by ID.
type GetRunRequest struct {
	Id string `json:"id"`
}

type GetRunResponse struct {
	Run *Run `json:"run"`
}

// ListRunsRequest asks for the most recent runs. Limit 0 means the server default.
type ListRunsRequest struct {
	Limit int32 `json:"limit"`
}

type ListRunsResponse struct {
	Runs []*Run `json:"runs"`
}

// Run is the wire form of a persisted run summary.
type Run struct {
	Id         string `json:"id"`
	Source     string `json:"source"`
	Status     string `json:"status"`
	StatsJson  string `json:"stats_json,omitempty"`
	ArchiveUrl string `json:"archive_url,omitempty"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}
