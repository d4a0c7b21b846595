package apimodels

// AnalysisRequest is the parsed form of GET /api/analyze.
type AnalysisRequest struct {
	// Query is the natural language question about patents
	Query string `json:"query"`

	// Model is the provider model identifier; empty selects the configured default
	Model string `json:"model,omitempty"`
}
