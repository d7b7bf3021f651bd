package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dunamismax/thumbnailer/internal/pipeline"
)

func TestSendAddsSigningHeaders(t *testing.T) {
	var (
		gotSig  string
		gotTS   string
		gotEvt  string
		gotBody []byte
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(HeaderSignature)
		gotTS = r.Header.Get(HeaderTimestamp)
		gotEvt = r.Header.Get(HeaderEvent)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(Config{
		SigningSecret:  "test-secret",
		Timeout:        2 * time.Second,
		MaxAttempts:    1,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
	}, nil)

	err := client.Send(context.Background(), srv.URL, Notification{
		Event:  EventJobCompleted,
		JobID:  "job-1",
		Output: ThumbnailFrom(pipeline.Result{Location: "thumbs/job-1.png", Width: 200, Height: 200}),
	})
	if err != nil {
		t.Fatalf("send returned error: %v", err)
	}

	if gotTS == "" {
		t.Fatal("expected timestamp header")
	}
	if err := Verify("test-secret", gotTS, gotBody, gotSig); err != nil {
		t.Fatalf("signature did not verify: %v", err)
	}
	if gotEvt != EventJobCompleted {
		t.Fatalf("expected event header job.completed, got %q", gotEvt)
	}

	var n Notification
	if err := json.Unmarshal(gotBody, &n); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if n.Output == nil || n.Output.Location != "thumbs/job-1.png" || n.Output.Width != 200 {
		t.Fatalf("unexpected output in body: %+v", n.Output)
	}
}

func TestSendRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(Config{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}, nil)

	if err := client.Send(context.Background(), srv.URL, Notification{Event: EventJobFailed}); err != nil {
		t.Fatalf("send returned error: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestSendStopsOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(Config{MaxAttempts: 4, InitialBackoff: time.Millisecond}, nil)

	if err := client.Send(context.Background(), srv.URL, Notification{Event: EventJobFailed}); err == nil {
		t.Fatal("expected error for 401")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestSendEmptyEndpointIsNoop(t *testing.T) {
	client := NewClient(Config{}, nil)
	if err := client.Send(context.Background(), "  ", Notification{}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	sig := Sign("secret", "1700000000", []byte(`{"job_id":"a"}`))
	err := Verify("secret", "1700000000", []byte(`{"job_id":"b"}`), sig)
	if !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}
