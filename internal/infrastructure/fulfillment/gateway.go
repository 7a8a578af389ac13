// Package fulfillment forwards order relays to supplier fulfillment endpoints.
package fulfillment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/marketrelay/backend/internal/domain/relay"
	"go.uber.org/zap"
)

// Headers sent with every dispatch
const (
	HeaderSignature  = "X-Relay-Signature"
	HeaderTimestamp  = "X-Relay-Timestamp"
	HeaderRelayID    = "X-Relay-ID"
	HeaderSupplierID = "X-Supplier-ID"
)

// HeaderIdempotencyKey carries the relay id so a supplier can drop a retry
// of a call whose answer was lost
const HeaderIdempotencyKey = "Idempotency-Key"

// maxResponseSize bounds how much of a supplier reply is read
const maxResponseSize = 1 << 20

// Config configures the HTTP gateway
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	SigningSecret string
}

// HTTPGateway POSTs a signed JSON dispatch request to
// {BaseURL}/suppliers/{supplier_id}/orders. Suppliers deduplicate on the relay id.
type HTTPGateway struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewHTTPGateway creates a supplier gateway
func NewHTTPGateway(cfg Config, logger *zap.Logger) *HTTPGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPGateway{
		config:     cfg,
		httpClient: &http.Client{},
		logger:     logger.Named("fulfillment"),
		now:        time.Now,
	}
}

// WithHTTPClient replaces the HTTP client, mainly for tests
func (g *HTTPGateway) WithHTTPClient(client *http.Client) *HTTPGateway {
	g.httpClient = client
	return g
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Dispatch sends the request and returns the supplier's receipt. Timeouts,
// transport errors, 408, 429 and 5xx are ErrSupplierUnavailable; any other
// non-2xx answer is ErrSupplierRejected.
func (g *HTTPGateway) Dispatch(ctx context.Context, req relay.DispatchRequest) (*relay.DispatchReceipt, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal dispatch request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	endpoint := strings.TrimRight(g.config.BaseURL, "/") + "/suppliers/" + req.SupplierID.String() + "/orders"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create dispatch request: %w", err)
	}

	ts := strconv.FormatInt(g.now().Unix(), 10)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(HeaderTimestamp, ts)
	httpReq.Header.Set(HeaderRelayID, req.RelayID.String())
	httpReq.Header.Set(HeaderIdempotencyKey, req.RelayID.String())
	httpReq.Header.Set(HeaderSupplierID, req.SupplierID.String())
	if g.config.SigningSecret != "" {
		httpReq.Header.Set(HeaderSignature, Sign(g.config.SigningSecret, ts, body))
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", relay.ErrSupplierUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", relay.ErrSupplierUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, g.statusError(req, resp.StatusCode, respBody)
	}

	var receipt relay.DispatchReceipt
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &receipt); err != nil {
			return nil, fmt.Errorf("%w: invalid receipt: %v", relay.ErrSupplierUnavailable, err)
		}
	}
	if receipt.AcceptedAt.IsZero() {
		receipt.AcceptedAt = g.now()
	}
	return &receipt, nil
}

func (g *HTTPGateway) statusError(req relay.DispatchRequest, status int, body []byte) error {
	msg := http.StatusText(status)
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil && eb.Message != "" {
		msg = eb.Message
		if eb.Code != "" {
			msg = eb.Code + ": " + eb.Message
		}
	}

	kind := relay.ErrSupplierRejected
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500 {
		kind = relay.ErrSupplierUnavailable
	}

	g.logger.Warn("supplier refused dispatch",
		zap.String("relay_id", req.RelayID.String()),
		zap.String("supplier_id", req.SupplierID.String()),
		zap.Int("status", status),
		zap.String("message", msg))
	return fmt.Errorf("%w: HTTP %d: %s", kind, status, msg)
}

// Sign returns the hex HMAC-SHA256 of "<timestamp>.<body>"
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature produced by Sign
func Verify(secret, timestamp string, body []byte, signature string) bool {
	expected, err := hex.DecodeString(Sign(secret, timestamp, body))
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

var _ relay.SupplierGateway = (*HTTPGateway)(nil)
