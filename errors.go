package lingoclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Sentinel errors. Use errors.Is to match them against errors returned by the
// client, the token manager and the store.
var (
	ErrTransport     = errors.New("transport error")
	ErrBusiness      = errors.New("business error")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLoginRequired = errors.New("login required")
	ErrConfig        = errors.New("configuration error")
	ErrInvalidKey    = errors.New("invalid store key")
)

// ErrorKind classifies a failed API call.
type ErrorKind int

const (
	// KindTransport means no usable server response (DNS, connect, timeout).
	KindTransport ErrorKind = iota + 1
	// KindBusiness means the server answered but did not report success.
	KindBusiness
	// KindUnauthorized means the server answered with HTTP 401.
	KindUnauthorized
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindBusiness:
		return "business"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is returned by an Executor for every failed call.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Code       string
	Message    string
	Header     http.Header
	Data       json.RawMessage
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("%s error (status %d, code %s): %s", e.Kind, e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("%s error (status %d): %s", e.Kind, e.StatusCode, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match an *Error against the kind sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrBusiness:
		return e.Kind == KindBusiness
	case ErrUnauthorized:
		return e.Kind == KindUnauthorized
	}
	return false
}

// ConfigError reports a programming error detected before any network I/O,
// such as a malformed logical path or a missing domain mapping.
type ConfigError struct {
	Path   string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return "config: " + e.Reason
	}
	return fmt.Sprintf("config: %s: %s", e.Path, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// ValidationError is returned when request parameters fail their Validate check.
// Fields maps a parameter name to what is wrong with it.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "invalid parameters: " + strings.Join(parts, "; ")
}

// Add records a field error and returns e for chaining.
func (e *ValidationError) Add(field, problem string) *ValidationError {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = problem
	return e
}

// OrNil returns nil when no field errors were recorded.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// IsUnauthorized reports whether err came from an HTTP 401 response.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsLoginRequired reports whether the caller must prompt for an explicit sign-in.
func IsLoginRequired(err error) bool {
	return errors.Is(err, ErrLoginRequired)
}
