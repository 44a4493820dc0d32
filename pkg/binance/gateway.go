package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/quantmill/quoter/pkg/models"
	"github.com/quantmill/quoter/pkg/venue"
)

// Gateway places and cancels live orders over the Binance REST API. It
// implements the same venue contract as the arrival simulator, so the
// controller does not know which one it is talking to. Fills arrive out of
// band on live venues, so SubmitQuote reports pending on acceptance.
type Gateway struct {
	apiKey     string
	apiSecret  string
	baseURL    string
	symbol     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

func NewGateway(baseURL, apiKey, apiSecret, symbol string, ordersPerSecond float64, logger *logrus.Logger) *Gateway {
	return &Gateway{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		baseURL:    baseURL,
		symbol:     strings.ToUpper(symbol),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(ordersPerSecond), 1),
		logger:     logger,
	}
}

type orderResponse struct {
	OrderID int64  `json:"orderId"`
	Status  string `json:"status"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

// SubmitQuote rests a post-only limit order. Rejections (including crossing
// the book, which LIMIT_MAKER rejects) are ordinary outcomes.
func (g *Gateway) SubmitQuote(ctx context.Context, side models.OrderSide, price, size float64) (venue.SubmitResult, error) {
	if price <= 0 || math.IsInf(price, 1) {
		return venue.SubmitResult{Status: venue.StatusRejected}, nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return venue.SubmitResult{}, fmt.Errorf("rate limit wait: %w", err)
	}

	params := url.Values{}
	params.Set("symbol", g.symbol)
	params.Set("side", strings.ToUpper(string(side)))
	params.Set("type", "LIMIT_MAKER")
	params.Set("price", fmt.Sprintf("%v", price))
	params.Set("quantity", fmt.Sprintf("%v", size))

	body, status, err := g.signedRequest(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return venue.SubmitResult{}, err
	}
	if status != http.StatusOK {
		var apiErr apiError
		if jsonErr := json.Unmarshal(body, &apiErr); jsonErr == nil && apiErr.Message != "" {
			g.logger.WithFields(logrus.Fields{
				"side": side,
				"code": apiErr.Code,
				"msg":  apiErr.Message,
			}).Warn("Order rejected")
		}
		return venue.SubmitResult{Status: venue.StatusRejected}, nil
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return venue.SubmitResult{}, fmt.Errorf("decode order response: %w", err)
	}

	g.logger.WithFields(logrus.Fields{
		"order_id": resp.OrderID,
		"side":     side,
		"price":    price,
		"size":     size,
	}).Debug("Order resting")
	return venue.SubmitResult{Status: venue.StatusPending}, nil
}

// CancelAll withdraws every open order on the symbol. Best-effort: the ledger
// already accounts for the position whether or not the cancel lands.
func (g *Gateway) CancelAll(ctx context.Context) error {
	params := url.Values{}
	params.Set("symbol", g.symbol)

	_, status, err := g.signedRequest(ctx, http.MethodDelete, "/api/v3/openOrders", params)
	if err != nil {
		return fmt.Errorf("cancel all: %w", err)
	}
	// 400 with "no open orders" is a routine response during shutdown.
	if status != http.StatusOK && status != http.StatusBadRequest {
		return fmt.Errorf("cancel all: unexpected status %d", status)
	}
	return nil
}

func (g *Gateway) signedRequest(ctx context.Context, method, path string, params url.Values) ([]byte, int, error) {
	params.Set("timestamp", fmt.Sprintf("%d", time.Now().UnixMilli()))
	query := params.Encode()
	params.Set("signature", g.sign(query))

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("X-MBX-APIKEY", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func (g *Gateway) sign(payload string) string {
	h := hmac.New(sha256.New, []byte(g.apiSecret))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}
