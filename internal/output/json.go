// Package output writes the JSON envelope every missiontrack command prints.
package output

import (
	"encoding/json"
	"errors"
	"io"
	"os"
)

// SchemaVersion is stamped on every envelope.
const SchemaVersion = "v1"

// EnvPrettyJSON enables indented output when set to "1" or "true".
const EnvPrettyJSON = "MISSIONTRACK_PRETTY_JSON"

// Response represents a standard JSON response.
type Response struct {
	SchemaVersion   string            `json:"schema_version"`
	Success         bool              `json:"success"`
	Data            any               `json:"data,omitempty"`
	Error           string            `json:"error,omitempty"`
	ErrorCode       string            `json:"error_code,omitempty"`
	ErrorContext    map[string]string `json:"error_context,omitempty"`
	SuggestedAction string            `json:"suggested_action,omitempty"`
}

// recoverableError mirrors models.RecoverableError so this package stays a leaf.
type recoverableError interface {
	error
	ErrorCode() string
	Context() map[string]string
	SuggestedAction() string
}

// Success wraps a successful response with data.
func Success(data any) Response {
	return Response{
		SchemaVersion: SchemaVersion,
		Success:       true,
		Data:          data,
	}
}

// Error wraps an error in a response, carrying code, context and suggested
// action when err is recoverable.
func Error(err error) Response {
	resp := Response{
		SchemaVersion: SchemaVersion,
		Success:       false,
		Error:         err.Error(),
	}
	var re recoverableError
	if errors.As(err, &re) {
		resp.ErrorCode = re.ErrorCode()
		resp.ErrorContext = re.Context()
		resp.SuggestedAction = re.SuggestedAction()
	}
	return resp
}

// Config controls where and how JSON is written.
type Config struct {
	Writer io.Writer
	Pretty bool
}

// DefaultConfig writes compact JSON to stdout unless MISSIONTRACK_PRETTY_JSON is set.
func DefaultConfig() Config {
	v := os.Getenv(EnvPrettyJSON)
	return Config{Writer: os.Stdout, Pretty: v == "1" || v == "true"}
}

// PrintWith encodes v using cfg.
func PrintWith(cfg Config, v any) error {
	enc := json.NewEncoder(cfg.Writer)
	if cfg.Pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// Print prints a value as JSON to stdout.
func Print(v any) error {
	return PrintWith(DefaultConfig(), v)
}

// PrintSuccess prints a success response.
func PrintSuccess(data any) error {
	return Print(Success(data))
}

// PrintError prints an error response.
func PrintError(err error) error {
	return Print(Error(err))
}
