package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

type recordSender struct {
	name     string
	err      error
	titles   []string
	messages []string
}

func (r *recordSender) Send(_ context.Context, title, message string) error {
	if r.err != nil {
		return r.err
	}
	r.titles = append(r.titles, title)
	r.messages = append(r.messages, message)
	return nil
}

func (r *recordSender) Name() string { return r.name }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAlertFansOut(t *testing.T) {
	a := &recordSender{name: "a"}
	b := &recordSender{name: "b"}
	n := NewNotifier([]Sender{a, b}, "", discard())

	n.Alert(context.Background(), SeverityCritical, "naked exposure", map[string]string{
		"venue":   "kalshi",
		"attempt": "att1",
	})

	for _, s := range []*recordSender{a, b} {
		if len(s.titles) != 1 {
			t.Fatalf("sender %s got %d alerts, want 1", s.name, len(s.titles))
		}
		if s.titles[0] != "[CRITICAL] naked exposure" {
			t.Errorf("title = %q", s.titles[0])
		}
		if s.messages[0] != "attempt: att1\nvenue: kalshi" {
			t.Errorf("message = %q, fields must render in key order", s.messages[0])
		}
	}
}

func TestAlertSeverityFloor(t *testing.T) {
	s := &recordSender{name: "a"}
	n := NewNotifier([]Sender{s}, SeverityCritical, discard())

	n.Alert(context.Background(), SeverityWarning, "drawdown warning", nil)
	if len(s.titles) != 0 {
		t.Fatal("warning must not pass a critical floor")
	}

	n.Alert(context.Background(), SeverityCritical, "kill switch engaged", nil)
	if len(s.titles) != 1 {
		t.Fatal("critical must pass")
	}
}

func TestAlertSenderFailureDoesNotBlockOthers(t *testing.T) {
	bad := &recordSender{name: "bad", err: errors.New("webhook down")}
	good := &recordSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, "", discard())

	n.Alert(context.Background(), SeverityCritical, "naked exposure", nil)
	if len(good.titles) != 1 {
		t.Fatal("remaining senders must still deliver")
	}
}

func TestDiscordSender(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = string(body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL)
	if err := d.Send(context.Background(), "[CRITICAL] naked exposure", "venue: kalshi"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	want := `{"content":"**[CRITICAL] naked exposure**\nvenue: kalshi"}`
	if got != want {
		t.Errorf("payload = %s, want %s", got, want)
	}
}

func TestDiscordSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad webhook", http.StatusBadRequest)
	}))
	defer srv.Close()

	if err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m"); err == nil {
		t.Fatal("4xx must surface as an error")
	}
}
