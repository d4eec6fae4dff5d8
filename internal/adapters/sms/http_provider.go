package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bazarly/auth-service/internal/obs"
	"github.com/bazarly/auth-service/internal/ports"
)

// HTTPProvider dispatches messages through a generic JSON gateway.
// Provider response fields never leave this package; callers only see
// ports.DispatchResult and ports.DispatchError.
type HTTPProvider struct {
	endpoint string
	apiKey   string
	from     string
	client   *http.Client
}

func NewHTTPProvider(endpoint, apiKey, from string) *HTTPProvider {
	return &HTTPProvider{
		endpoint: endpoint,
		apiKey:   apiKey,
		from:     from,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type gatewayRequest struct {
	To   string `json:"to"`
	From string `json:"from"`
	Body string `json:"body"`
}

type gatewayResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error,omitempty"`
}

func (p *HTTPProvider) Send(ctx context.Context, phoneNumber, message string) (ports.DispatchResult, error) {
	payload, err := json.Marshal(gatewayRequest{To: phoneNumber, From: p.from, Body: message})
	if err != nil {
		return ports.DispatchResult{}, &ports.DispatchError{Kind: ports.DispatchPermanent, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return ports.DispatchResult{}, &ports.DispatchError{Kind: ports.DispatchPermanent, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		// Network failures and deadline hits are worth retrying later.
		obs.RecordSMSDispatch("http", "transient_error")
		return ports.DispatchResult{}, &ports.DispatchError{Kind: ports.DispatchTransient, Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var parsed gatewayResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			obs.RecordSMSDispatch("http", "transient_error")
			return ports.DispatchResult{}, &ports.DispatchError{
				Kind: ports.DispatchTransient,
				Err:  fmt.Errorf("decode gateway response: %w", err),
			}
		}
		obs.RecordSMSDispatch("http", "success")
		return ports.DispatchResult{ProviderMessageID: parsed.MessageID}, nil

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		obs.RecordSMSDispatch("http", "transient_error")
		return ports.DispatchResult{}, &ports.DispatchError{
			Kind: ports.DispatchTransient,
			Err:  fmt.Errorf("gateway status %d: %s", resp.StatusCode, string(body)),
		}

	default:
		obs.RecordSMSDispatch("http", "permanent_error")
		slog.Default().Warn("sms gateway rejected dispatch",
			"module", "sms",
			"layer", "adapter",
			"status", resp.StatusCode,
		)
		return ports.DispatchResult{}, &ports.DispatchError{
			Kind: ports.DispatchPermanent,
			Err:  fmt.Errorf("gateway status %d: %s", resp.StatusCode, string(body)),
		}
	}
}
