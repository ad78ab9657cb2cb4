package main

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/manslikestiffler/smart-granary/pkg/models"
)

type recordingBroadcaster struct {
	mu       sync.Mutex
	messages []string
}

func (b *recordingBroadcaster) BroadcastJSON(v interface{}) {
	data, _ := json.Marshal(v)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, string(data))
}

type recordingForwarder struct {
	readings []models.Reading
	err      error
}

func (f *recordingForwarder) PostReading(_ context.Context, r models.Reading) error {
	if f.err != nil {
		return f.err
	}
	f.readings = append(f.readings, r)
	return nil
}

func TestBridge_Run(t *testing.T) {
	input := strings.Join([]string{
		"TEMP,24.5",
		"Temperature STABLE.",
		"garbage line",
		"",
		"Temperature EXCEEDED threshold!",
		"ERROR: sensor disconnected",
		"TEMP,abc",
	}, "\n")

	broadcaster := &recordingBroadcaster{}
	forwarder := &recordingForwarder{}
	bridge := NewBridge(broadcaster, forwarder)
	bridge.now = func() time.Time { return time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC) }

	if err := bridge.Run(context.Background(), strings.NewReader(input)); err != nil {
		t.Fatalf("Expected no error but got: %v", err)
	}

	expected := []string{
		`{"temperature":"24.5"}`,
		`{"status":"Temperature STABLE."}`,
		`{"alert":"Temperature EXCEEDED threshold!"}`,
		`{"error":"ERROR: sensor disconnected"}`,
		`{"temperature":"abc"}`,
	}
	if len(broadcaster.messages) != len(expected) {
		t.Fatalf("Expected %d messages, got %d: %v", len(expected), len(broadcaster.messages), broadcaster.messages)
	}
	for i, want := range expected {
		if broadcaster.messages[i] != want {
			t.Errorf("Message %d: expected %s, got %s", i, want, broadcaster.messages[i])
		}
	}

	if len(forwarder.readings) != 1 {
		t.Fatalf("Expected 1 forwarded reading, got %d", len(forwarder.readings))
	}
	if v, _ := forwarder.readings[0].Value(models.SensorKeyTemperature); v != 24.5 {
		t.Errorf("Expected temperature 24.5, got %v", v)
	}

	lines, forwarded := bridge.Stats()
	if lines != 6 || forwarded != 1 {
		t.Errorf("Expected 6 lines and 1 forwarded, got %d and %d", lines, forwarded)
	}
}

func TestBridge_ForwardError(t *testing.T) {
	broadcaster := &recordingBroadcaster{}
	bridge := NewBridge(broadcaster, &recordingForwarder{err: errors.New("connection refused")})

	if err := bridge.Run(context.Background(), strings.NewReader("TEMP,21.0\n")); err != nil {
		t.Fatalf("Expected no error but got: %v", err)
	}
	if len(broadcaster.messages) != 1 {
		t.Errorf("Expected the event to be broadcast despite the forward error, got %d", len(broadcaster.messages))
	}
	if _, forwarded := bridge.Stats(); forwarded != 0 {
		t.Errorf("Expected 0 forwarded, got %d", forwarded)
	}
}

func TestBridge_NoForwarder(t *testing.T) {
	broadcaster := &recordingBroadcaster{}
	bridge := NewBridge(broadcaster, nil)

	if err := bridge.Run(context.Background(), strings.NewReader("TEMP,21.0\n")); err != nil {
		t.Fatalf("Expected no error but got: %v", err)
	}
	if len(broadcaster.messages) != 1 {
		t.Errorf("Expected 1 message, got %d", len(broadcaster.messages))
	}
}
