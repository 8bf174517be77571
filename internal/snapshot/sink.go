// Package snapshot delivers solution snapshots produced by a running search
// to files, the run store and webhooks without blocking the search.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"vrpspd/internal/export"
	"vrpspd/internal/model"
	"vrpspd/internal/store"
)

// Sink receives snapshots. Write may be called from several goroutines.
type Sink interface {
	Name() string
	Write(ctx context.Context, snap model.Snapshot) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc struct {
	Label string
	Fn    func(ctx context.Context, snap model.Snapshot) error
}

func (s SinkFunc) Name() string { return s.Label }

func (s SinkFunc) Write(ctx context.Context, snap model.Snapshot) error { return s.Fn(ctx, snap) }

// FileSink writes each snapshot as a .sol file into Dir.
type FileSink struct {
	Dir string
}

func (f FileSink) Name() string { return "file" }

func (f FileSink) Write(ctx context.Context, snap model.Snapshot) error {
	_, err := export.WriteSolFile(f.Dir, snap)
	return err
}

// StoreSink persists snapshots with the run store.
type StoreSink struct {
	Store store.Store
}

func (s StoreSink) Name() string { return "store" }

func (s StoreSink) Write(ctx context.Context, snap model.Snapshot) error {
	return s.Store.SaveSnapshot(ctx, snap)
}

// WebhookEvent is the body posted by WebhookSink.
type WebhookEvent struct {
	ID   string         `json:"id"`
	Type string         `json:"type"`
	TS   string         `json:"ts"`
	Data model.Snapshot `json:"data"`
}

// WebhookSink posts snapshots as JSON. With a secret the body is signed
// in the X-Signature header.
type WebhookSink struct {
	URL    string
	Secret string
	HTTP   *http.Client
}

func NewWebhookSink(url, secret string) *WebhookSink {
	return &WebhookSink{URL: url, Secret: secret, HTTP: &http.Client{Timeout: 5 * time.Second}}
}

func (w *WebhookSink) Name() string { return "webhook" }

func (w *WebhookSink) Write(ctx context.Context, snap model.Snapshot) error {
	now := time.Now()
	body, err := json.Marshal(WebhookEvent{
		ID:   fmt.Sprintf("evt_%d", now.UnixNano()),
		Type: "snapshot." + snap.Kind,
		TS:   now.UTC().Format(time.RFC3339),
		Data: snap,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", "snapshot."+snap.Kind)
	if w.Secret != "" {
		req.Header.Set("X-Signature", SignHMAC(w.Secret, body))
	}
	resp, err := w.HTTP.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s: status %d", w.URL, resp.StatusCode)
	}
	return nil
}

// WebhookHandler receives WebhookSink posts and passes each event to fn.
// With a secret, requests whose X-Signature does not match are rejected.
func WebhookHandler(secret string, fn func(WebhookEvent)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 16<<20))
		if err != nil {
			http.Error(w, "unreadable body", http.StatusBadRequest)
			return
		}
		if secret != "" && !VerifyHMAC(secret, body, r.Header.Get("X-Signature")) {
			http.Error(w, "bad signature", http.StatusUnauthorized)
			return
		}
		var evt WebhookEvent
		if err := json.Unmarshal(body, &evt); err != nil {
			http.Error(w, "invalid event", http.StatusBadRequest)
			return
		}
		fn(evt)
		w.WriteHeader(http.StatusNoContent)
	})
}
