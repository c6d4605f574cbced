package importer

import "github.com/fiscalia/fiscalia/internal/shared"

// JobResponse is one job as rendered by the upload and list endpoints.
type JobResponse struct {
	Job
}

// JobDetailResponse adds counts derived from the stored row outcomes and
// the per-row outcomes themselves. Only the show endpoint pays for them.
type JobDetailResponse struct {
	Job
	Counts  Counts       `json:"counts"`
	Records []RowOutcome `json:"records"`
}

type listResponse struct {
	Imports    []JobResponse     `json:"imports"`
	Pagination shared.Pagination `json:"pagination"`
}
