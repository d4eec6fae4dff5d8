package sms

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/bazarly/auth-service/internal/obs"
	"github.com/bazarly/auth-service/internal/ports"
)

// LogProvider writes messages to the structured log instead of a gateway.
// Used in local development and tests where real delivery is unwanted.
type LogProvider struct {
	seq atomic.Int64
}

func NewLogProvider() *LogProvider {
	return &LogProvider{}
}

func (p *LogProvider) Send(ctx context.Context, phoneNumber, message string) (ports.DispatchResult, error) {
	id := p.seq.Add(1)
	slog.Default().Info("sms dispatched to log",
		"module", "sms",
		"layer", "adapter",
		"phone_number", phoneNumber,
		"message", message,
	)
	obs.RecordSMSDispatch("log", "success")
	return ports.DispatchResult{ProviderMessageID: fmt.Sprintf("log-%d", id)}, nil
}
