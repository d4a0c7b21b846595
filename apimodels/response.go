package apimodels

// Error codes returned in ErrorBody.Code.
const (
	CodeMissingQuery     = "MISSING_QUERY"
	CodeProcessingError  = "PROCESSING_ERROR"
	CodeRateLimited      = "RATE_LIMITED"
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

type AnalysisResponse struct {
	// The model's final answer
	Text string `json:"text"`

	// One entry per model step, in execution order
	Steps []StepRecord `json:"steps"`
}

type StepRecord struct {
	ToolCalls []ToolCallRecord `json:"toolCalls"`
}

type ToolCallRecord struct {
	Tool string                 `json:"tool"`
	Args map[string]interface{} `json:"args"`
}

type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewError builds an error envelope.
func NewError(code, message string) ErrorEnvelope {
	return ErrorEnvelope{Error: ErrorBody{Code: code, Message: message}}
}

type HealthResponse struct {
	Status string `json:"status"`
}
