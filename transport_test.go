package lingoclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func TestTransportClosesBodyWhenTokenFails(t *testing.T) {
	tm := NewTokenManager(NewStore(nil), nil, nil)
	tr := &Transport{
		Base: roundTripFunc(func(*http.Request) (*http.Response, error) {
			t.Error("base transport should not be called")
			return nil, errors.New("unexpected")
		}),
		Tokens: tm,
	}

	body := &closeTracker{Reader: strings.NewReader(`{"a":1}`)}
	req, err := http.NewRequest(http.MethodPost, "http://example.com/v1/api/echo", body)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := tr.RoundTrip(req); !errors.Is(err, ErrLoginRequired) {
		t.Errorf("err = %v, want ErrLoginRequired", err)
	}
	if !body.closed {
		t.Error("request body was not closed")
	}
}

func TestTransportSetsBearer(t *testing.T) {
	store := NewStore(nil)
	store.SaveCredential(context.Background(), &Credential{
		AccessToken: "tok",
		ExpiresAt:   time.Now().Add(time.Hour),
	})

	var auth string
	tr := &Transport{
		Base: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			auth = req.Header.Get("Authorization")
			return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(""))}, nil
		}),
		Tokens: NewTokenManager(store, nil, nil),
	}

	req, _ := http.NewRequest(http.MethodGet, "http://example.com/", nil)
	resp, err := tr.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip failed: %v", err)
	}
	resp.Body.Close()
	if auth != "Bearer tok" {
		t.Errorf("Authorization = %q", auth)
	}
	if req.Header.Get("Authorization") != "" {
		t.Error("original request was mutated")
	}
}
