package models

import (
	"errors"
	"fmt"
	"strconv"
)

// RecoverableError is implemented by enriched errors that carry structured
// context and remediation hints. Both the delivery and output packages use
// this interface to avoid an import cycle.
type RecoverableError interface {
	error
	ErrorCode() string
	Context() map[string]string
	SuggestedAction() string
}

// Sentinels for errors.Is on delivery failures.
var (
	ErrTransport = errors.New("transport error")
	ErrServer    = errors.New("server error")
	ErrConfig    = errors.New("config error")
)

// TransportError reports that the endpoint could not be reached or did not
// answer before the attempt timeout.
type TransportError struct {
	Endpoint string
	Timeout  bool
	Err      error
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("delivery to %s timed out: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("delivery to %s failed: %v", e.Endpoint, e.Err)
}
func (e *TransportError) Unwrap() error     { return e.Err }
func (e *TransportError) ErrorCode() string { return "TRANSPORT_ERROR" }
func (e *TransportError) Context() map[string]string {
	return map[string]string{
		"endpoint": e.Endpoint,
		"timeout":  strconv.FormatBool(e.Timeout),
	}
}
func (e *TransportError) SuggestedAction() string {
	return "check that the mission control endpoint is reachable (MISSION_CONTROL_URL)"
}
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// ServerError reports a reachable backend that answered with a non-2xx status.
type ServerError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("delivery to %s rejected with status %d", e.Endpoint, e.StatusCode)
}
func (e *ServerError) ErrorCode() string { return "SERVER_ERROR" }
func (e *ServerError) Context() map[string]string {
	return map[string]string{
		"endpoint":    e.Endpoint,
		"status_code": strconv.Itoa(e.StatusCode),
		"body":        e.Body,
	}
}
func (e *ServerError) SuggestedAction() string {
	if e.StatusCode == 401 || e.StatusCode == 403 {
		return "check webhook_secret / MISSION_CONTROL_SECRET"
	}
	return "inspect the backend logs; the batch stays queued and is retried on the next flush"
}
func (e *ServerError) Is(target error) bool { return target == ErrServer }

// ConfigError reports that no delivery endpoint is configured.
type ConfigError struct {
	Setting string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("delivery disabled: %s is not configured", e.Setting)
}
func (e *ConfigError) ErrorCode() string { return "CONFIG_ERROR" }
func (e *ConfigError) Context() map[string]string {
	return map[string]string{"setting": e.Setting}
}
func (e *ConfigError) SuggestedAction() string {
	return "set base_url in config.yaml or MISSION_CONTROL_URL"
}
func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// ErrorCode returns the code of a RecoverableError in err's chain, or "".
func ErrorCode(err error) string {
	var re RecoverableError
	if errors.As(err, &re) {
		return re.ErrorCode()
	}
	return ""
}
