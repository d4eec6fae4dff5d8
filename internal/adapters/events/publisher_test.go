package events

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggingPublisherRedactsPayload(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	publisher := NewLoggingPublisher(slog.New(slog.NewJSONHandler(&buf, nil)))

	payload := []byte(`{"identity_id":"idr_01HZX000000000000000000001","phone_number":"+14155550177"}`)
	if err := publisher.Publish(context.Background(), "identity.registered", payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	logged := buf.String()
	if !strings.Contains(logged, "identity.registered") {
		t.Fatalf("event type missing from log: %s", logged)
	}
	if strings.Contains(logged, "+14155550177") {
		t.Fatalf("payload leaked into log: %s", logged)
	}
}
