// Package toolsurface implements the uniform JSON-in/JSON-out tool-call
// surface: every core operation takes a JSON object and returns either
// {ok:true,...} or {ok:false,error:{code,message,details}}, the same
// hand-rolled dispatch shape as codenerd's internal/mcp transports (no
// MCP SDK dependency).
package toolsurface

import "encoding/json"

// Canonical error codes (spec §7).
const (
	CodeInvalidArgs            = "INVALID_ARGS"
	CodeInvalidState           = "INVALID_STATE"
	CodeInvalidJSON            = "INVALID_JSON"
	CodeInvalidJSONL           = "INVALID_JSONL"
	CodeNotFound               = "NOT_FOUND"
	CodeSchemaValidationFailed = "SCHEMA_VALIDATION_FAILED"
	CodeImmutableField         = "IMMUTABLE_FIELD"
	CodeRevisionMismatch       = "REVISION_MISMATCH"
	CodePathTraversal          = "PATH_TRAVERSAL"
	CodeRunLocked              = "RUN_LOCKED"
	CodeWriteFailed            = "WRITE_FAILED"
	CodeWaveCapExceeded        = "WAVE_CAP_EXCEEDED"
	CodeWave1NotValidated      = "WAVE1_NOT_VALIDATED"
	CodeWave1ContractNotMet    = "WAVE1_CONTRACT_NOT_MET"
	CodeMismatchedPerspective  = "MISMATCHED_PERSPECTIVE_ID"
	CodeDuplicateGapID         = "DUPLICATE_GAP_ID"
	CodeGapsSectionNotFound    = "GAPS_SECTION_NOT_FOUND"
	CodeGapsParseFailed        = "GAPS_PARSE_FAILED"
	CodeGateBlocked            = "GATE_BLOCKED"
	CodeMissingArtifact        = "MISSING_ARTIFACT"
	CodeRequestedNextNotAllow  = "REQUESTED_NEXT_NOT_ALLOWED"
	CodeRetryRequired          = "RETRY_REQUIRED"
	CodeRetryExhausted         = "RETRY_EXHAUSTED"
	CodeRetryCapExhausted      = "RETRY_CAP_EXHAUSTED"
	CodeRunAgentFailed         = "RUN_AGENT_FAILED"
	CodeWatchdogTimeout        = "WATCHDOG_TIMEOUT"
	CodeTickCapExceeded        = "TICK_CAP_EXCEEDED"
	CodePaused                 = "PAUSED"
	CodeCancelled              = "CANCELLED"
	CodeBundleInvalid          = "BUNDLE_INVALID"
	CodeParseFailed            = "PARSE_FAILED"
	CodeUpstreamInvalidJSON    = "UPSTREAM_INVALID_JSON"
)

// ToolError is the error shape carried in {ok:false,error:...}.
type ToolError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Message
}

// NewError constructs a *ToolError.
func NewError(code, message string, details interface{}) *ToolError {
	return &ToolError{Code: code, Message: message, Details: details}
}

// AsToolError unwraps err into a *ToolError, wrapping unknown errors as
// INVALID_STATE so every operation surfaces a stable code even for bugs.
func AsToolError(err error) *ToolError {
	if err == nil {
		return nil
	}
	if te, ok := err.(*ToolError); ok {
		return te
	}
	return &ToolError{Code: CodeInvalidState, Message: err.Error()}
}

// Envelope is the outer {ok, error, result} shape serialized to callers.
type Envelope struct {
	OK     bool        `json:"ok"`
	Error  *ToolError  `json:"error,omitempty"`
	Result interface{} `json:"-"`
}

// MarshalJSON flattens Result's fields alongside ok/error when Result is
// itself a JSON object, matching "{ok:true, ...}" rather than nesting
// under a "result" key.
func (e Envelope) MarshalJSON() ([]byte, error) {
	if !e.OK {
		return json.Marshal(struct {
			OK    bool       `json:"ok"`
			Error *ToolError `json:"error"`
		}{OK: false, Error: e.Error})
	}

	if e.Result == nil {
		return json.Marshal(struct {
			OK bool `json:"ok"`
		}{OK: true})
	}

	resultBytes, err := json.Marshal(e.Result)
	if err != nil {
		return nil, err
	}
	var resultMap map[string]json.RawMessage
	if err := json.Unmarshal(resultBytes, &resultMap); err != nil {
		// Result isn't a JSON object (e.g. a bare array/scalar) — nest it.
		return json.Marshal(struct {
			OK     bool            `json:"ok"`
			Result json.RawMessage `json:"result"`
		}{OK: true, Result: resultBytes})
	}
	resultMap["ok"] = json.RawMessage("true")
	return json.Marshal(resultMap)
}

// Ok builds a success envelope.
func Ok(result interface{}) Envelope {
	return Envelope{OK: true, Result: result}
}

// Fail builds a failure envelope from an error.
func Fail(err error) Envelope {
	return Envelope{OK: false, Error: AsToolError(err)}
}

// MarshalString is a convenience for handlers that must return a JSON
// string rather than a value (matching the spec's "returning a JSON
// string" phrasing for the tool-call surface).
func MarshalString(e Envelope) string {
	b, err := json.Marshal(e)
	if err != nil {
		// Marshal failure of our own envelope is a programming error;
		// degrade to a minimal valid envelope rather than panicking.
		return `{"ok":false,"error":{"code":"INVALID_STATE","message":"envelope marshal failed"}}`
	}
	return string(b)
}
