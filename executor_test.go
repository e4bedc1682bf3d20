package lingoclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveBody(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExecutorOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind ErrorKind
		wantCode string
		wantMsg  string
		wantData string
	}{
		{name: "success with data", status: 200, body: `{"status":"success","data":{"id":1}}`, wantData: `{"id":1}`},
		{name: "success with message only", status: 200, body: `{"status":"success","message":"saved"}`},
		{name: "success without data or message", status: 200, body: `{"status":"success"}`, wantKind: KindBusiness},
		{name: "error envelope on 200", status: 200, body: `{"status":"error","error":{"code":"E1","message":"bad word"}}`, wantKind: KindBusiness, wantCode: "E1", wantMsg: "bad word"},
		{name: "numeric code", status: 200, body: `{"status":"error","code":1001,"message":"quota"}`, wantKind: KindBusiness, wantCode: "1001", wantMsg: "quota"},
		{name: "server error", status: 503, body: `{"status":"error","message":"down"}`, wantKind: KindBusiness, wantMsg: "down"},
		{name: "not json", status: 502, body: `<html>bad gateway</html>`, wantKind: KindBusiness, wantMsg: "invalid response from server"},
		{name: "unauthorized", status: 401, body: `{"status":"error","error":{"code":"token_expired","message":"expired"}}`, wantKind: KindUnauthorized, wantCode: "token_expired", wantMsg: "expired"},
		{name: "unauthorized without body", status: 401, body: ``, wantKind: KindUnauthorized, wantMsg: "Unauthorized"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serveBody(t, tt.status, tt.body)
			resp, err := NewHTTPExecutor(nil).Do(context.Background(), &Request{Method: http.MethodGet, URL: srv.URL})

			if tt.wantKind == 0 {
				require.NoError(t, err)
				if tt.wantData != "" {
					assert.JSONEq(t, tt.wantData, string(resp.Data))
				}
				return
			}

			require.Error(t, err)
			var apiErr *Error
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.wantKind, apiErr.Kind)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantCode, apiErr.Code)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, apiErr.Message)
			}
		})
	}
}

func TestExecutorSendsJSON(t *testing.T) {
	var got struct {
		method, contentType, custom string
		body                        map[string]any
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.contentType = r.Header.Get("Content-Type")
		got.custom = r.Header.Get("X-Custom")
		json.NewDecoder(r.Body).Decode(&got.body)
		io.WriteString(w, `{"status":"success","data":true}`)
	}))
	defer srv.Close()

	_, err := NewHTTPExecutor(srv.Client()).Do(context.Background(), &Request{
		Method: http.MethodPost,
		URL:    srv.URL,
		Body:   map[string]any{"word": "apple"},
		Header: http.Header{"X-Custom": {"yes"}},
	})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "application/json", got.contentType)
	assert.Equal(t, "yes", got.custom)
	assert.Equal(t, "apple", got.body["word"])
}

func TestExecutorTimeoutIsTransportError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewHTTPExecutor(nil).Do(context.Background(), &Request{
		Method:  http.MethodGet,
		URL:     srv.URL,
		Timeout: 20 * time.Millisecond,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Nil(t, apiErr.Data)
}

func TestExecutorBadURL(t *testing.T) {
	_, err := NewHTTPExecutor(nil).Do(context.Background(), &Request{Method: "GET", URL: "://nope"})
	assert.True(t, errors.Is(err, ErrConfig))
}

func TestResponseDecode(t *testing.T) {
	resp := &Response{Data: json.RawMessage(`{"word":"apple"}`)}
	var out struct{ Word string }
	require.NoError(t, resp.Decode(&out))
	assert.Equal(t, "apple", out.Word)

	out.Word = "kept"
	require.NoError(t, (&Response{Data: json.RawMessage("null")}).Decode(&out))
	assert.Equal(t, "kept", out.Word)
}

func TestErrorString(t *testing.T) {
	err := &Error{Kind: KindBusiness, StatusCode: 200, Code: "E1", Message: "bad word"}
	assert.True(t, strings.Contains(err.Error(), "bad word"))
	assert.False(t, errors.Is(err, ErrTransport))
	assert.True(t, errors.Is(err, ErrBusiness))
}
