package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/errors"
)

func TestGetClassifiesStatus(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, apperrors.ErrAuth},
		{http.StatusTooManyRequests, apperrors.ErrRateLimited},
		{http.StatusBadGateway, apperrors.ErrTransient},
		{http.StatusNotFound, apperrors.ErrMalformedResponse},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		_, err := NewClient(time.Second, "").Get(context.Background(), "test", srv.URL, nil)
		srv.Close()
		if !errors.Is(err, tt.want) || apperrors.StatusOf(err) != tt.status {
			t.Errorf("status %d: err = %v, want %v", tt.status, err, tt.want)
		}
	}
}

func TestGetTimeoutIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := NewClient(20*time.Millisecond, "").Get(context.Background(), "slow", srv.URL, nil)
	if !errors.Is(err, apperrors.ErrTransient) {
		t.Fatalf("err = %v, want transient", err)
	}
}

func TestGetJSONMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer t" || r.Header.Get("User-Agent") != "ua/1" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte("<html>"))
	}))
	defer srv.Close()

	var dst map[string]any
	err := NewClient(time.Second, "ua/1").GetJSON(context.Background(), "x", srv.URL, http.Header{"Authorization": {"Bearer t"}}, &dst)
	if !errors.Is(err, apperrors.ErrMalformedResponse) {
		t.Fatalf("err = %v, want malformed", err)
	}
}
