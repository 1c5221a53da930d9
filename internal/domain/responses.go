package domain

// HealthResponse represents the test server health check response
type HealthResponse struct {
	Status        string `json:"status"`
	IndexFile     string `json:"index_file"`
	SourceIndex   string `json:"source_index"`
	PackageCount  int    `json:"package_count"`
	PlatformCount int    `json:"platform_count"`
	StartedAt     string `json:"started_at"`
}

// VersionResponse represents the version info response
type VersionResponse struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}
