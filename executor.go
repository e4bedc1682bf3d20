package lingoclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single request when Request.Timeout is unset
const DefaultTimeout = 30 * time.Second

// Response statuses reported in the body envelope.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Request is one fully resolved API call.
type Request struct {
	Method  string
	URL     string
	Body    any
	Header  http.Header
	Timeout time.Duration
}

// Response is the normalized result of a successful call.
type Response struct {
	Data       json.RawMessage
	StatusCode int
	Header     http.Header
	Code       string
	Message    string
}

// Decode unmarshals Data into out. An absent or null payload leaves out untouched.
func (r *Response) Decode(out any) error {
	if out == nil || len(r.Data) == 0 || bytes.Equal(r.Data, []byte("null")) {
		return nil
	}
	return json.Unmarshal(r.Data, out)
}

// Executor performs exactly one network call per Do.
type Executor interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// Doer is the subset of *http.Client used by HTTPExecutor.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPExecutor is the default Executor. It treats transport success and
// application success as independent: a 200 whose body reports "error" is
// still a failure.
type HTTPExecutor struct {
	doer Doer
}

// NewHTTPExecutor creates an executor sending requests through doer.
// A nil doer uses a fresh http.Client.
func NewHTTPExecutor(doer Doer) *HTTPExecutor {
	if doer == nil {
		doer = &http.Client{}
	}
	return &HTTPExecutor{doer: doer}
}

// flexCode accepts both string and numeric error codes.
type flexCode string

func (c *flexCode) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = flexCode(s)
		return nil
	}
	if string(data) == "null" {
		return nil
	}
	*c = flexCode(data)
	return nil
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Code    flexCode        `json:"code"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    flexCode `json:"code"`
		Message string   `json:"message"`
	} `json:"error"`
}

func (e *envelope) hasData() bool {
	return len(e.Data) > 0 && !bytes.Equal(e.Data, []byte("null"))
}

func (e *envelope) code() string {
	if e.Error != nil && e.Error.Code != "" {
		return string(e.Error.Code)
	}
	return string(e.Code)
}

func (e *envelope) message() string {
	if e.Error != nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return e.Message
}

func transportError(err error) *Error {
	return &Error{
		Kind:       KindTransport,
		StatusCode: http.StatusInternalServerError,
		Message:    err.Error(),
		Err:        err,
	}
}

// Do implements Executor
func (e *HTTPExecutor) Do(ctx context.Context, req *Request) (*Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, &ConfigError{Path: req.URL, Reason: err.Error()}
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}

	resp, err := e.doer.Do(httpReq)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(fmt.Errorf("failed to read response: %w", err))
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode == http.StatusUnauthorized {
		msg := env.message()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &Error{
			Kind:       KindUnauthorized,
			StatusCode: resp.StatusCode,
			Code:       env.code(),
			Message:    msg,
			Header:     resp.Header,
		}
	}

	if decodeErr != nil {
		return nil, &Error{
			Kind:       KindBusiness,
			StatusCode: resp.StatusCode,
			Message:    "invalid response from server",
			Header:     resp.Header,
			Err:        decodeErr,
		}
	}

	if env.Status == StatusSuccess && (env.hasData() || env.Message != "") {
		return &Response{
			Data:       env.Data,
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Code:       env.code(),
			Message:    env.Message,
		}, nil
	}

	msg := env.message()
	if msg == "" {
		msg = fmt.Sprintf("request failed: HTTP %d", resp.StatusCode)
	}
	return nil, &Error{
		Kind:       KindBusiness,
		StatusCode: resp.StatusCode,
		Code:       env.code(),
		Message:    msg,
		Header:     resp.Header,
		Data:       env.Data,
	}
}
