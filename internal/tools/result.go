package tools

// Result is the unified return value of every tool invocation — the
// ToolResult envelope. Invariant: Success implies Output is populated;
// !Success implies Error is populated. metadata["isSelfCorrectError"]
// marks a recoverable error per the self-correct contract.
type Result struct {
	Success  bool           `json:"success"`
	Output   string         `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`

	// Silent suppresses the user-visible echo of this result (idempotency
	// no-ops and retrying notices use this).
	Silent bool `json:"-"`
}

func NewResult(output string) *Result {
	return &Result{Success: true, Output: output}
}

func SilentResult(output string) *Result {
	return &Result{Success: true, Output: output, Silent: true}
}

func ErrorResult(message string) *Result {
	return &Result{Success: false, Error: message}
}

func (r *Result) WithMetadata(key string, value any) *Result {
	if r.Metadata == nil {
		r.Metadata = make(map[string]any)
	}
	r.Metadata[key] = value
	return r
}

// IsSelfCorrectError reports whether this result carries a recoverable
// self-correct marker, per the metadata-preferred extraction policy.
func (r *Result) IsSelfCorrectError() bool {
	if r.Success || r.Metadata == nil {
		return false
	}
	v, ok := r.Metadata["isSelfCorrectError"]
	return ok && v == true
}

// String returns Output for a successful Result and Error otherwise.
func (r *Result) String() string {
	if r.Success {
		return r.Output
	}
	return r.Error
}
