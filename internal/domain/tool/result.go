package tool

// Diagnostic explains a failure or a partial success.
type Diagnostic struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Result is the value a tool execution produces. A Result with OK=false
// always carries at least one diagnostic.
type Result struct {
	OK          bool           `json:"ok"`
	Stdout      string         `json:"stdout,omitempty"`
	Stderr      string         `json:"stderr,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	Diagnostics []Diagnostic   `json:"diagnostics,omitempty"`
}

// Success returns an OK result carrying structured data.
func Success(data map[string]any) Result {
	return Result{OK: true, Data: data}
}

// Failure returns a failed result with a single diagnostic.
func Failure(code, message string) Result {
	return Result{
		OK:          false,
		Diagnostics: []Diagnostic{{Code: code, Message: message}},
	}
}

// WithDiagnostic appends a diagnostic and returns the result.
func (r Result) WithDiagnostic(code, message string, details map[string]any) Result {
	r.Diagnostics = append(r.Diagnostics, Diagnostic{Code: code, Message: message, Details: details})
	return r
}

// FirstDiagnostic returns the first diagnostic message, or "".
func (r Result) FirstDiagnostic() string {
	if len(r.Diagnostics) == 0 {
		return ""
	}
	return r.Diagnostics[0].Message
}
