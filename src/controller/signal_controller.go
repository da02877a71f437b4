// Package controller routes inbound trading alerts to broker orders across the
// configured accounts and keeps the position ledger in step with them.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"signalrouter/src/externalmodel"
	"signalrouter/src/model"
	"signalrouter/src/stream"
)

type TokenProvider interface {
	GetToken(ctx context.Context, userName, apiKey, clientID string) (string, error)
}

type Broker interface {
	OpenLongPosition(ctx context.Context, token string, accountID int64, contractID string, size int) (int64, error)
	OpenShortPosition(ctx context.Context, token string, accountID int64, contractID string, size int) (int64, error)
	CloseContract(ctx context.Context, token string, accountID int64, contractID string) error
}

type Ledger interface {
	CreateTrade(ctx context.Context, trade *model.Trade) (uint, error)
	CloseTrade(ctx context.Context, tradeID uint, exitPrice, pnl, pnlDollars *float64) error
	GetCurrentPositions(ctx context.Context, symbol string) ([]model.CurrentPosition, error)
	UpsertSignal(ctx context.Context, signal *model.Signal) error
}

type Notifier interface {
	NotifyEntry(ctx context.Context, sig externalmodel.TradingSignal) error
	NotifyExit(ctx context.Context, sig externalmodel.TradingSignal, pnl float64, pnlDollars *float64) error
}

type EventPublisher interface {
	Publish(eventType string, data interface{})
}

// AccountResult is the outcome of one account's order attempt.
type AccountResult struct {
	AccountID int64       `json:"accountId"`
	Success   bool        `json:"success"`
	Action    string      `json:"action,omitempty"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
}

type RouteResponse struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Action     string          `json:"action"`
	SignalID   string          `json:"signalId"`
	TradeID    uint            `json:"tradeId,omitempty"`
	Trade      *model.Trade    `json:"trade,omitempty"`
	Results    []AccountResult `json:"results"`
	Pnl        *float64        `json:"pnl,omitempty"`
	PnlDollars *float64        `json:"pnlDollars,omitempty"`
}

type Option func(*SignalController)

func WithNotifier(n Notifier) Option {
	return func(c *SignalController) { c.notifier = n }
}

func WithEvents(p EventPublisher) Option {
	return func(c *SignalController) { c.events = p }
}

func WithExceptionRepository(r exceptionRepository) Option {
	return func(c *SignalController) { c.exceptions = r }
}

func WithClock(now func() time.Time) Option {
	return func(c *SignalController) { c.now = now }
}

func WithLogger(log *logrus.Entry) Option {
	return func(c *SignalController) { c.log = log }
}

type SignalController struct {
	cfg        Config
	tokens     TokenProvider
	broker     Broker
	ledger     Ledger
	notifier   Notifier
	events     EventPublisher
	exceptions exceptionRepository
	locks      *symbolLocks
	dedup      *dedupWindow
	now        func() time.Time
	log        *logrus.Entry
}

func NewSignalController(cfg Config, tokens TokenProvider, broker Broker, ledger Ledger, opts ...Option) *SignalController {
	c := &SignalController{
		cfg:    cfg,
		tokens: tokens,
		broker: broker,
		ledger: ledger,
		locks:  newSymbolLocks(),
		dedup:  newDedupWindow(cfg.DedupWindow),
		now:    time.Now,
		log:    logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithField("component", "signal_router")
	return c
}

// Config returns the router configuration.
func (c *SignalController) Config() Config {
	return c.cfg
}

// DefaultToken returns a session token for the default credentials.
func (c *SignalController) DefaultToken(ctx context.Context) (string, error) {
	if c.cfg.DefaultUserName == "" || c.cfg.DefaultAPIKey == "" {
		return "", fmt.Errorf("%w: default account", ErrMissingCredentials)
	}
	return c.tokens.GetToken(ctx, c.cfg.DefaultUserName, c.cfg.DefaultAPIKey, "")
}

// Route executes one alert: validate, fan out to every account, then update
// the ledger and notify. Per-account failures are reported in the results and
// never fail the call. Input errors wrap ErrInvalidArgument.
func (c *SignalController) Route(ctx context.Context, sig externalmodel.TradingSignal) (*RouteResponse, error) {
	receivedAt := c.now()
	symbol := NormalizeSymbol(sig.Symbol)
	sig.Symbol = symbol
	signalID := BuildSignalID(symbol, sig.Direction, sig.Comment, receivedAt)

	log := c.log.WithFields(logrus.Fields{
		"signal_id": signalID,
		"symbol":    symbol,
		"direction": sig.Direction,
		"comment":   sig.Comment,
	})
	log.Info("signal received")

	// ------------------------------------------------------------------
	// 1) Resolve contract, quantity and action
	// ------------------------------------------------------------------
	contractID, ok := c.cfg.ContractMap[symbol]
	if !ok || contractID == "" {
		log.Warn("unknown symbol, signal ignored")
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, sig.Symbol)
	}

	quantity := c.cfg.QuantityMap[symbol]
	if quantity <= 0 {
		quantity = 1
	}

	action, err := ParseAction(sig.Direction, sig.Comment)
	if err != nil {
		log.WithError(err).Warn("unknown action, signal ignored")
		return nil, err
	}

	if c.dedup.Seen(sig, receivedAt) {
		log.Warn("duplicate signal inside dedup window")
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSignal, signalID)
	}

	log = log.WithFields(logrus.Fields{
		"action":      action.String(),
		"contract_id": contractID,
		"quantity":    quantity,
	})

	// ------------------------------------------------------------------
	// 2) Fan out across accounts
	// ------------------------------------------------------------------
	results := c.fanOut(ctx, action, contractID, quantity)

	executed, failed := splitResults(results)
	log.WithFields(logrus.Fields{
		"executed": len(executed),
		"failed":   len(failed),
	}).Info("account fan-out finished")

	signal := &model.Signal{
		SignalID:         signalID,
		Direction:        strings.ToLower(sig.Direction),
		Comment:          strings.ToLower(sig.Comment),
		Symbol:           symbol,
		Timeframe:        sig.Timeframe,
		TimeOfMessage:    sig.TimeOfMessage,
		Price:            sig.Price,
		Text:             sig.Text,
		ReceivedAt:       receivedAt,
		ExecutedAccounts: executed,
		FailedAccounts:   failed,
	}

	resp := &RouteResponse{
		Success:  true,
		Action:   action.String(),
		SignalID: signalID,
		Results:  results,
	}

	// ------------------------------------------------------------------
	// 3) Ledger, one writer per symbol
	// ------------------------------------------------------------------
	unlock := c.locks.Lock(symbol)
	defer unlock()

	// No broker position changed, so the tracked position must not either.
	if len(executed) == 0 {
		err = c.recordUnexecuted(ctx, log, action, signal, resp)
	} else {
		switch action {
		case ActionOpenLong, ActionOpenShort:
			err = c.recordEntry(ctx, log, action, sig, contractID, quantity, signal, resp)
		case ActionCloseLong, ActionCloseShort:
			err = c.recordExit(ctx, log, action, sig, signal, resp)
		default:
			err = fmt.Errorf("%w: %s", ErrUnknownAction, action)
		}
	}
	if err != nil {
		Capture(ctx, c.exceptions, "signal_router", "controller", "Route", "error", err, map[string]interface{}{
			"signal_id": signalID,
			"symbol":    symbol,
			"action":    action.String(),
			"results":   results,
		})
		return nil, err
	}

	c.publish(stream.EventSignalRouted, resp)
	return resp, nil
}

func (c *SignalController) fanOut(ctx context.Context, action Action, contractID string, quantity int) []AccountResult {
	accounts := c.cfg.Accounts
	results := make([]AccountResult, len(accounts))

	var g errgroup.Group
	limit := c.cfg.AccountConcurrency
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, acc := range accounts {
		g.Go(func() error {
			results[i] = c.executeForAccount(ctx, acc, action, contractID, quantity)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (c *SignalController) executeForAccount(
	ctx context.Context,
	acc TradingAccount,
	action Action,
	contractID string,
	quantity int,
) AccountResult {

	log := c.log.WithFields(logrus.Fields{
		"account_id":  acc.ID,
		"action":      action.String(),
		"contract_id": contractID,
	})

	fail := func(err error) AccountResult {
		log.WithError(err).Error("account execution failed")
		return AccountResult{AccountID: acc.ID, Success: false, Action: action.String(), Error: err.Error()}
	}

	userName, apiKey, err := c.cfg.credentials(acc)
	if err != nil {
		return fail(err)
	}

	token, err := c.tokens.GetToken(ctx, userName, apiKey, "")
	if err != nil {
		return fail(err)
	}

	var result interface{}
	switch action {
	case ActionOpenLong:
		orderID, err := c.broker.OpenLongPosition(ctx, token, acc.ID, contractID, quantity)
		if err != nil {
			return fail(err)
		}
		result = map[string]interface{}{"orderId": orderID, "side": "buy", "size": quantity}
	case ActionOpenShort:
		orderID, err := c.broker.OpenShortPosition(ctx, token, acc.ID, contractID, quantity)
		if err != nil {
			return fail(err)
		}
		result = map[string]interface{}{"orderId": orderID, "side": "sell", "size": quantity}
	case ActionCloseLong, ActionCloseShort:
		if err := c.broker.CloseContract(ctx, token, acc.ID, contractID); err != nil {
			return fail(err)
		}
		result = map[string]interface{}{"contractId": contractID, "closed": true}
	default:
		return fail(fmt.Errorf("%w: %s", ErrUnknownAction, action))
	}

	log.Info("account execution succeeded")
	return AccountResult{AccountID: acc.ID, Success: true, Action: action.String(), Result: result}
}

func (c *SignalController) recordEntry(
	ctx context.Context,
	log *logrus.Entry,
	action Action,
	sig externalmodel.TradingSignal,
	contractID string,
	quantity int,
	signal *model.Signal,
	resp *RouteResponse,
) error {

	trade := &model.Trade{
		Direction:     signal.Direction,
		Comment:       signal.Comment,
		Symbol:        signal.Symbol,
		ContractID:    contractID,
		Timeframe:     sig.Timeframe,
		TimeOfMessage: sig.TimeOfMessage,
		Text:          sig.Text,
		Quantity:      quantity,
		SignalID:      signal.SignalID,
		Price:         sig.Price,
		EntryPrice:    sig.Price,
	}

	tradeID, err := c.ledger.CreateTrade(ctx, trade)
	if err != nil {
		return fmt.Errorf("create trade: %w", err)
	}

	if err := c.ledger.UpsertSignal(ctx, signal); err != nil {
		return fmt.Errorf("upsert signal: %w", err)
	}

	log.WithField("trade_id", tradeID).Info("trade opened")

	resp.TradeID = tradeID
	resp.Trade = trade
	resp.Message = fmt.Sprintf("%s on %s", action.Description(), signal.Symbol)
	c.publish(stream.EventTradeOpened, trade)

	if c.notifier != nil && signal.Symbol == NormalizeSymbol(c.cfg.PremiumSymbol) {
		if err := c.notifier.NotifyEntry(ctx, sig); err != nil {
			log.WithError(err).Warn("entry notification failed")
		}
	}
	return nil
}

func (c *SignalController) recordExit(
	ctx context.Context,
	log *logrus.Entry,
	action Action,
	sig externalmodel.TradingSignal,
	signal *model.Signal,
	resp *RouteResponse,
) error {

	positions, err := c.ledger.GetCurrentPositions(ctx, signal.Symbol)
	if err != nil {
		return fmt.Errorf("get current positions: %w", err)
	}

	if len(positions) == 0 {
		log.Warn("no tracked position to close")
		if err := c.ledger.UpsertSignal(ctx, signal); err != nil {
			return fmt.Errorf("upsert signal: %w", err)
		}
		resp.Message = fmt.Sprintf("%s on %s: no tracked position to close", action.Description(), signal.Symbol)
		return nil
	}

	pos := positions[0]
	entryPrice := 0.0
	if pos.EntryPrice != nil {
		entryPrice = *pos.EntryPrice
	}
	exitPrice := sig.PriceOrZero()
	pnl := ComputePnL(pos.Direction, entryPrice, exitPrice)

	var pnlDollars *float64
	if d, ok := PnLDollars(pnl, c.cfg.PointValueMap[signal.Symbol], pos.Quantity); ok {
		pnlDollars = &d
	}

	if err := c.ledger.CloseTrade(ctx, pos.TradeID, &exitPrice, &pnl, pnlDollars); err != nil {
		return fmt.Errorf("close trade %d: %w", pos.TradeID, err)
	}

	if err := c.ledger.UpsertSignal(ctx, signal); err != nil {
		return fmt.Errorf("upsert signal: %w", err)
	}

	log.WithFields(logrus.Fields{
		"trade_id":    pos.TradeID,
		"direction":   pos.Direction,
		"entry_price": entryPrice,
		"exit_price":  exitPrice,
		"pnl":         pnl,
	}).Info("trade closed")

	resp.TradeID = pos.TradeID
	resp.Pnl = &pnl
	resp.PnlDollars = pnlDollars
	resp.Message = fmt.Sprintf("%s on %s: P&L %+.2f pts", action.Description(), signal.Symbol, pnl)
	c.publish(stream.EventTradeClosed, map[string]interface{}{
		"tradeId":    pos.TradeID,
		"symbol":     signal.Symbol,
		"pnl":        pnl,
		"pnlDollars": pnlDollars,
	})

	if c.notifier != nil {
		if err := c.notifier.NotifyExit(ctx, sig, pnl, pnlDollars); err != nil {
			log.WithError(err).Warn("exit notification failed")
		}
	}
	return nil
}

// recordUnexecuted stores the signal when no account took the order and
// leaves trades and the tracked position untouched.
func (c *SignalController) recordUnexecuted(
	ctx context.Context,
	log *logrus.Entry,
	action Action,
	signal *model.Signal,
	resp *RouteResponse,
) error {

	log.WithField("failed", len(signal.FailedAccounts)).Warn("no account executed the order, ledger unchanged")
	if err := c.ledger.UpsertSignal(ctx, signal); err != nil {
		return fmt.Errorf("upsert signal: %w", err)
	}
	resp.Message = fmt.Sprintf("%s on %s: no account executed the order", action.Description(), signal.Symbol)
	return nil
}

func (c *SignalController) publish(eventType string, data interface{}) {
	if c.events != nil {
		c.events.Publish(eventType, data)
	}
}

func splitResults(results []AccountResult) (executed, failed []int64) {
	executed, failed = []int64{}, []int64{}
	for _, r := range results {
		if r.Success {
			executed = append(executed, r.AccountID)
		} else {
			failed = append(failed, r.AccountID)
		}
	}
	return executed, failed
}

// IsInputError reports whether err was caused by the alert itself.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}
