package api

// HealthResponse is the GET /healthz payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// VersionResponse is the GET /api/version payload.
type VersionResponse struct {
	Name      string `json:"name"`
	GitCommit string `json:"git_commit"`
}
