// Package payment covers the core's contract with the external payment
// gateway: unique transaction references per booking attempt, a
// redirect hand-off, and a verification endpoint that is safe to call
// any number of times.  The verifier in this package is what turns a
// verified payment into exactly one promotion, or releases the seats.
package payment

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "strings"
    "time"

    "github.com/google/uuid"
)

// Status is the gateway's answer for one transaction reference.
type Status string

const (
    StatusSuccess Status = "SUCCESS"
    StatusPending Status = "PENDING"
    StatusFailed  Status = "FAILED"
)

// Gateway abstracts the external payment provider.  Initiate returns
// the URL the browser is redirected to; Verify resolves a transaction
// reference and may be called repeatedly.
type Gateway interface {
    Initiate(ctx context.Context, paymentRef string, amountCents uint32) (redirectURL string, err error)
    Verify(ctx context.Context, paymentRef string) (Status, error)
}

// NewPaymentRef returns a fresh transaction reference.  References are
// unique per booking attempt; retrying the payment step generates a
// new one.
func NewPaymentRef() string {
    return uuid.NewString()
}

// NewBookingRef returns a public booking reference shown to the
// passenger.  Shorter than the transaction reference but still unique.
func NewBookingRef() string {
    return "BK-" + strings.ToUpper(uuid.NewString()[:8])
}

// HTTPGateway talks to a REST payment provider.  The request timeout
// is deliberately short: the UI never blocks long on the gateway, and
// an ambiguous outcome is resolved by verification, not by waiting.
type HTTPGateway struct {
    baseURL string
    client  *http.Client
}

// NewHTTPGateway builds a gateway client for the given base URL.
func NewHTTPGateway(baseURL string) *HTTPGateway {
    return &HTTPGateway{
        baseURL: strings.TrimRight(baseURL, "/"),
        client:  &http.Client{Timeout: 5 * time.Second},
    }
}

// Initiate registers the transaction with the provider and returns the
// redirect URL for the browser.
func (g *HTTPGateway) Initiate(ctx context.Context, paymentRef string, amountCents uint32) (string, error) {
    body, err := json.Marshal(map[string]interface{}{
        "tx_ref":       paymentRef,
        "amount_cents": amountCents,
    })
    if err != nil {
        return "", err
    }
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/transactions", bytes.NewReader(body))
    if err != nil {
        return "", err
    }
    req.Header.Set("Content-Type", "application/json")
    resp, err := g.client.Do(req)
    if err != nil {
        return "", err
    }
    defer resp.Body.Close()
    if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
        return "", fmt.Errorf("gateway initiate: unexpected status %d", resp.StatusCode)
    }
    var out struct {
        RedirectURL string `json:"redirect_url"`
    }
    if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
        return "", err
    }
    if out.RedirectURL == "" {
        return "", fmt.Errorf("gateway initiate: empty redirect url")
    }
    return out.RedirectURL, nil
}

// Verify asks the provider for the transaction's state.  Unknown
// status strings are reported as pending so the caller retries rather
// than assuming failure.
func (g *HTTPGateway) Verify(ctx context.Context, paymentRef string) (Status, error) {
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/transactions/"+paymentRef, nil)
    if err != nil {
        return StatusPending, err
    }
    resp, err := g.client.Do(req)
    if err != nil {
        return StatusPending, err
    }
    defer resp.Body.Close()
    if resp.StatusCode != http.StatusOK {
        return StatusPending, fmt.Errorf("gateway verify: unexpected status %d", resp.StatusCode)
    }
    var out struct {
        Status string `json:"status"`
    }
    if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
        return StatusPending, err
    }
    switch strings.ToUpper(out.Status) {
    case "SUCCESS", "SUCCESSFUL", "COMPLETED":
        return StatusSuccess, nil
    case "FAILED", "CANCELLED", "DECLINED":
        return StatusFailed, nil
    default:
        return StatusPending, nil
    }
}
