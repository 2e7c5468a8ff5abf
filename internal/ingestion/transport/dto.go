// Package transport holds the request/response shapes of the ingestion API.
package transport

// MaxReportedErrors caps the per-item error list in a run report. The count
// in the summary still covers every error.
const MaxReportedErrors = 50

// RunRequest is the trigger endpoint's query surface. Zero values mean
// "use the configured default".
type RunRequest struct {
	Hours int `form:"hours" validate:"omitempty,min=1,max=87600"`
	Limit int `form:"limit" validate:"omitempty,min=1,max=50000"`
}

// RunSummary is the numeric outcome of one pipeline run.
type RunSummary struct {
	TotalEventsFetched int     `json:"total_events_fetched"`
	TotalLeadsCreated  int     `json:"total_leads_created"`
	TotalLeadsUpdated  int     `json:"total_leads_updated"`
	TotalUniqueLeads   int     `json:"total_unique_leads"`
	TotalUniqueSeekers int     `json:"total_unique_seekers"`
	DurationSeconds    float64 `json:"duration_seconds"`
	ErrorsCount        int     `json:"errors_count"`
}

// RunReport is what the driver hands back: the summary plus the capped
// per-item error messages.
type RunReport struct {
	Summary RunSummary
	Errors  []string
}

// RunResponse is the endpoint's success payload.
type RunResponse struct {
	Success bool       `json:"success"`
	Summary RunSummary `json:"summary"`
	Errors  []string   `json:"errors,omitempty"`
	Message string     `json:"message"`
}
