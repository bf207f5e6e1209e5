package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"ticketflow/internal/domain"
)

// HTTPGateway queries a settlement system over its JSON status endpoint:
// GET {base}/v1/transactions/{ref} -> {"status": "...", "confirmed_amount_cents": n}.
type HTTPGateway struct {
	base   string
	client *http.Client
}

func NewHTTPGateway(baseURL string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

type statusResponse struct {
	Status               string `json:"status"`
	ConfirmedAmountCents int64  `json:"confirmed_amount_cents"`
}

func (g *HTTPGateway) Status(ctx context.Context, externalRef string) (GatewayResult, error) {
	url := fmt.Sprintf("%s/v1/transactions/%s", g.base, externalRef)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return GatewayResult{}, errors.Wrap(err, "build gateway request")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return GatewayResult{}, errors.Wrap(err, "gateway request")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return GatewayResult{}, errors.Newf("gateway HTTP %d: %s", resp.StatusCode, string(body))
	}

	var sr statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return GatewayResult{}, errors.Wrap(err, "decode gateway response")
	}

	status, err := mapStatus(sr.Status)
	if err != nil {
		return GatewayResult{}, err
	}
	return GatewayResult{Status: status, ConfirmedAmountCents: sr.ConfirmedAmountCents}, nil
}

func mapStatus(s string) (domain.PaymentStatus, error) {
	switch strings.ToUpper(s) {
	case "PENDING", "PROCESSING":
		return domain.PaymentStatusPending, nil
	case "CONFIRMED", "SETTLED":
		return domain.PaymentStatusConfirmed, nil
	case "FAILED", "REJECTED":
		return domain.PaymentStatusFailed, nil
	case "EXPIRED":
		return domain.PaymentStatusExpired, nil
	default:
		return "", errors.Newf("unknown gateway status %q", s)
	}
}
