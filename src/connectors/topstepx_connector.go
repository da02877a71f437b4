// REST API CLIENT FOR PROJECTX / TOPSTEPX FUTURES
// RESTY ONLY + INTERNAL RETRY
package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

// -----------------------------
// CONFIG
// -----------------------------
const (
	// Default retry configuration
	defaultRetryAttempts   = 5
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second

	DefaultTopstepBaseURL = "https://api.topstepx.com/api"
)

const (
	OrderTypeLimit        = 1
	OrderTypeMarket       = 2
	OrderTypeStop         = 4
	OrderTypeTrailingStop = 5
	OrderTypeJoinBid      = 6
	OrderTypeJoinAsk      = 7
)

const (
	OrderSideBid = 0 // buy
	OrderSideAsk = 1 // sell
)

const (
	CustomTagLong  = "Auto Long Position"
	CustomTagShort = "Auto Short Position"
)

// -----------------------------
// API RESPONSE ENVELOPE
// -----------------------------

// envelope is shared by every ProjectX response. A call succeeded iff
// success is true and errorCode is 0.
type envelope struct {
	Success      bool    `json:"success"`
	ErrorCode    int     `json:"errorCode"`
	ErrorMessage *string `json:"errorMessage"`
}

func (e envelope) ok() bool {
	return e.Success && e.ErrorCode == 0
}

// BrokerError is a non-2xx answer or a broker-reported failure.
type BrokerError struct {
	Op         string
	StatusCode int
	Code       int
	Message    string
	Err        error
}

func (e *BrokerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s: %s (errorCode %d)", e.Op, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *BrokerError) Unwrap() error { return e.Err }

// IsBrokerError reports whether err carries a *BrokerError.
func IsBrokerError(err error) bool {
	var be *BrokerError
	return errors.As(err, &be)
}

// -----------------------------
// PAYLOADS
// -----------------------------
type Account struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Balance   float64 `json:"balance"`
	CanTrade  bool    `json:"canTrade"`
	IsVisible bool    `json:"isVisible"`
}

type Position struct {
	ID                int64   `json:"id"`
	AccountID         int64   `json:"accountId"`
	ContractID        string  `json:"contractId"`
	CreationTimestamp string  `json:"creationTimestamp"`
	Type              int     `json:"type"` // 1 long, 2 short
	Size              int     `json:"size"`
	AveragePrice      float64 `json:"averagePrice"`
}

type Order struct {
	ID                int64    `json:"id"`
	AccountID         int64    `json:"accountId"`
	ContractID        string   `json:"contractId"`
	CreationTimestamp string   `json:"creationTimestamp"`
	UpdateTimestamp   string   `json:"updateTimestamp"`
	Status            int      `json:"status"`
	Type              int      `json:"type"`
	Side              int      `json:"side"`
	Size              int      `json:"size"`
	LimitPrice        *float64 `json:"limitPrice"`
	StopPrice         *float64 `json:"stopPrice"`
}

type Contract struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	Description       string  `json:"description,omitempty"`
	Symbol            string  `json:"symbol,omitempty"`
	Exchange          string  `json:"exchange,omitempty"`
	TickSize          float64 `json:"tickSize"`
	TickValue         float64 `json:"tickValue,omitempty"`
	PointValue        float64 `json:"pointValue,omitempty"`
	MarginRequirement float64 `json:"marginRequirement,omitempty"`
	ActiveContract    bool    `json:"activeContract,omitempty"`
}

type PlaceOrderRequest struct {
	AccountID     int64    `json:"accountId"`
	ContractID    string   `json:"contractId"`
	Type          int      `json:"type"`
	Side          int      `json:"side"`
	Size          int      `json:"size"`
	LimitPrice    *float64 `json:"limitPrice,omitempty"`
	StopPrice     *float64 `json:"stopPrice,omitempty"`
	TrailPrice    *float64 `json:"trailPrice,omitempty"`
	CustomTag     string   `json:"customTag,omitempty"`
	LinkedOrderID *int64   `json:"linkedOrderId,omitempty"`
}

type PlaceOrderResponse struct {
	OrderID int64 `json:"orderId"`
}

// -----------------------------
// A) CLIENT
// -----------------------------

// TopstepClient is stateless: every call takes the bearer token to use.
type TopstepClient struct {
	baseURL string
	http    *resty.Client
}

// nonRetryablePaths are endpoints where a retried request could duplicate an order.
var nonRetryablePaths = []string{"/Order/place"}

func isRetryableResp(r *resty.Response, err error) bool {
	if r != nil && r.Request != nil {
		for _, p := range nonRetryablePaths {
			if strings.HasSuffix(r.Request.URL, p) {
				return false
			}
		}
	}

	if err != nil {
		return true
	}

	if r == nil {
		return false
	}

	code := r.StatusCode()

	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 {
		return true
	}
	if code == 408 {
		return true
	}
	return false
}

func NewTopstepClient(baseURL string, timeout time.Duration) *TopstepClient {
	retryCount := defaultRetryAttempts - 1

	if baseURL == "" {
		baseURL = DefaultTopstepBaseURL
		logger.WithField("baseURL", baseURL).Warn("No base URL provided, using default")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &TopstepClient{
		baseURL: baseURL,
		http:    httpClient,
	}
}

// doRequest executes the call, checks the HTTP status and the envelope, then
// decodes the full body into out when it is not nil.
func (c *TopstepClient) doRequest(ctx context.Context, method, path, token string, body, out interface{}) error {
	req := c.http.R().
		SetContext(ctx).
		SetHeader("accept", "text/plain")

	if token != "" {
		req = req.SetAuthToken(token)
	}
	if body != nil {
		req = req.SetBody(body).SetHeader("Content-Type", "application/json")
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return &BrokerError{Op: path, Message: "request failed", Err: err}
	}

	raw := resp.Body()

	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return &BrokerError{
			Op:         path,
			StatusCode: resp.StatusCode(),
			Message:    fmt.Sprintf("HTTP error! status: %d", resp.StatusCode()),
		}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &BrokerError{Op: path, StatusCode: resp.StatusCode(), Message: "invalid response body", Err: err}
	}

	if !env.ok() {
		msg := GetErrorMsg(path)
		if env.ErrorMessage != nil && strings.TrimSpace(*env.ErrorMessage) != "" {
			msg = *env.ErrorMessage
		}
		return &BrokerError{
			Op:         path,
			StatusCode: resp.StatusCode(),
			Code:       env.ErrorCode,
			Message:    msg,
		}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return &BrokerError{Op: path, StatusCode: resp.StatusCode(), Message: "invalid response body", Err: err}
		}
	}

	return nil
}

// -----------------------------
// B) AUTH
// -----------------------------

// LoginKey exchanges a username and API key for a session token.
func (c *TopstepClient) LoginKey(ctx context.Context, userName, apiKey string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}

	body := map[string]string{
		"userName": userName,
		"apiKey":   apiKey,
	}
	if err := c.doRequest(ctx, http.MethodPost, "/Auth/loginKey", "", body, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", &BrokerError{Op: "/Auth/loginKey", Message: "no token in response"}
	}

	return out.Token, nil
}

// Validate checks that token is still accepted by the broker.
func (c *TopstepClient) Validate(ctx context.Context, token string) error {
	return c.doRequest(ctx, http.MethodPost, "/Auth/validate", token, nil, nil)
}

// -----------------------------
// C) ACCOUNT & POSITION METHODS
// -----------------------------

func (c *TopstepClient) SearchAccounts(ctx context.Context, token string, onlyActiveAccounts bool) ([]Account, error) {
	var out struct {
		Accounts []Account `json:"accounts"`
	}
	body := map[string]bool{"onlyActiveAccounts": onlyActiveAccounts}
	if err := c.doRequest(ctx, http.MethodPost, "/Account/search", token, body, &out); err != nil {
		return nil, err
	}
	return out.Accounts, nil
}

// GetAccount returns (nil, nil) when the broker answers 404.
func (c *TopstepClient) GetAccount(ctx context.Context, token string, accountID int64) (*Account, error) {
	var out struct {
		Account *Account `json:"account"`
	}
	err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/Account/%d", accountID), token, nil, &out)
	if err != nil {
		var be *BrokerError
		if errors.As(err, &be) && be.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return out.Account, nil
}

func (c *TopstepClient) SearchOpenPositions(ctx context.Context, token string, accountID int64) ([]Position, error) {
	var out struct {
		Positions []Position `json:"positions"`
	}
	body := map[string]int64{"accountId": accountID}
	if err := c.doRequest(ctx, http.MethodPost, "/Position/searchOpen", token, body, &out); err != nil {
		return nil, err
	}
	return out.Positions, nil
}

// CloseContract flattens the account's position on contractID.
func (c *TopstepClient) CloseContract(ctx context.Context, token string, accountID int64, contractID string) error {
	body := map[string]interface{}{
		"accountId":  accountID,
		"contractId": contractID,
	}
	return c.doRequest(ctx, http.MethodPost, "/Position/closeContract", token, body, nil)
}

// -----------------------------
// D) TRADING METHODS
// -----------------------------
func (c *TopstepClient) PlaceOrder(ctx context.Context, token string, order PlaceOrderRequest) (*PlaceOrderResponse, error) {
	var out PlaceOrderResponse
	if err := c.doRequest(ctx, http.MethodPost, "/Order/place", token, order, &out); err != nil {
		return nil, err
	}

	logger.WithFields(logger.Fields{
		"account_id":  order.AccountID,
		"contract_id": order.ContractID,
		"side":        order.Side,
		"size":        order.Size,
		"order_id":    out.OrderID,
	}).Info("order placed")

	return &out, nil
}

// OpenLongPosition places a market buy for size contracts and returns the order id.
func (c *TopstepClient) OpenLongPosition(ctx context.Context, token string, accountID int64, contractID string, size int) (int64, error) {
	resp, err := c.PlaceOrder(ctx, token, marketOrder(accountID, contractID, OrderSideBid, size, CustomTagLong))
	if err != nil {
		return 0, err
	}
	return resp.OrderID, nil
}

// OpenShortPosition places a market sell for size contracts and returns the order id.
func (c *TopstepClient) OpenShortPosition(ctx context.Context, token string, accountID int64, contractID string, size int) (int64, error) {
	resp, err := c.PlaceOrder(ctx, token, marketOrder(accountID, contractID, OrderSideAsk, size, CustomTagShort))
	if err != nil {
		return 0, err
	}
	return resp.OrderID, nil
}

func marketOrder(accountID int64, contractID string, side, size int, tag string) PlaceOrderRequest {
	if size <= 0 {
		size = 1
	}
	return PlaceOrderRequest{
		AccountID:  accountID,
		ContractID: contractID,
		Type:       OrderTypeMarket,
		Side:       side,
		Size:       size,
		CustomTag:  tag,
	}
}

func (c *TopstepClient) SearchOpenOrders(ctx context.Context, token string, accountID int64) ([]Order, error) {
	var out struct {
		Orders []Order `json:"orders"`
	}
	body := map[string]int64{"accountId": accountID}
	if err := c.doRequest(ctx, http.MethodPost, "/Order/searchOpen", token, body, &out); err != nil {
		return nil, err
	}
	return out.Orders, nil
}

func (c *TopstepClient) CancelOrder(ctx context.Context, token string, accountID, orderID int64) error {
	body := map[string]int64{
		"accountId": accountID,
		"orderId":   orderID,
	}
	return c.doRequest(ctx, http.MethodPost, "/Order/cancel", token, body, nil)
}

// -----------------------------
// E) CONTRACTS
// -----------------------------
func (c *TopstepClient) SearchContracts(ctx context.Context, token, searchText string, live bool) ([]Contract, error) {
	var out struct {
		Contracts []Contract `json:"contracts"`
	}
	body := map[string]interface{}{
		"searchText": searchText,
		"live":       live,
	}
	if err := c.doRequest(ctx, http.MethodPost, "/Contract/search", token, body, &out); err != nil {
		return nil, err
	}
	return out.Contracts, nil
}
