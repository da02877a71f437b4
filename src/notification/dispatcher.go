// Package notification posts text messages to Whop chat webhooks.
package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"signalrouter/src/externalmodel"
)

// ErrWebhookNotConfigured is returned when the target chat has no URL.
var ErrWebhookNotConfigured = errors.New("webhook url not configured")

// WebhookError is a non-2xx answer from a chat webhook.
type WebhookError struct {
	StatusCode int
	Channel    string
}

func (e *WebhookError) Error() string {
	if e.Channel != "" {
		return fmt.Sprintf("Webhook error: %d (%s chat)", e.StatusCode, e.Channel)
	}
	return fmt.Sprintf("Webhook error: %d", e.StatusCode)
}

type Payload struct {
	Content string `json:"content"`
}

type Result struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type BatchResult struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Results []Result `json:"results"`
}

type Dispatcher struct {
	cfg  Config
	loc  *time.Location
	http *resty.Client
	log  *logrus.Entry
}

func NewDispatcher(cfg Config, log *logrus.Entry) *Dispatcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	// Only throttling is retried: a 5xx may already have posted the message.
	httpClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && r != nil && r.StatusCode() == 429
		})

	return &Dispatcher{
		cfg:  cfg,
		loc:  cfg.Location(),
		http: httpClient,
		log:  log.WithField("component", "notification"),
	}
}

// Send posts payload to one webhook URL.
func (d *Dispatcher) Send(ctx context.Context, webhookURL string, payload Payload) (*Result, error) {
	return d.send(ctx, "", webhookURL, payload)
}

func (d *Dispatcher) send(ctx context.Context, channel, webhookURL string, payload Payload) (*Result, error) {
	if webhookURL == "" {
		if channel != "" {
			return nil, fmt.Errorf("%w: %s chat", ErrWebhookNotConfigured, channel)
		}
		return nil, ErrWebhookNotConfigured
	}

	resp, err := d.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(webhookURL)
	if err != nil {
		d.log.WithField("channel", channel).WithError(err).Error("webhook post failed")
		return nil, fmt.Errorf("post webhook: %w", err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		werr := &WebhookError{StatusCode: resp.StatusCode(), Channel: channel}
		d.log.WithField("channel", channel).WithError(werr).Error("webhook rejected message")
		return nil, werr
	}

	msg := "Message sent successfully"
	if channel != "" {
		msg = fmt.Sprintf("Message sent successfully to %s chat", channel)
	}
	return &Result{Status: "ok", Message: msg}, nil
}

type target struct {
	channel string
	url     string
}

// SendBatch posts the same payload to every URL concurrently.
// It fails if any single delivery fails.
func (d *Dispatcher) SendBatch(ctx context.Context, payload Payload, urls ...string) (*BatchResult, error) {
	targets := make([]target, 0, len(urls))
	for _, u := range urls {
		targets = append(targets, target{url: u})
	}
	return d.sendAll(ctx, payload, targets)
}

func (d *Dispatcher) sendAll(ctx context.Context, payload Payload, targets []target) (*BatchResult, error) {
	results := make([]Result, len(targets))

	// every post runs to completion; one failed chat never cancels the others
	var g errgroup.Group
	for i, t := range targets {
		g.Go(func() error {
			res, err := d.send(ctx, t.channel, t.url, payload)
			if err != nil {
				return err
			}
			results[i] = *res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &BatchResult{
		Status:  "ok",
		Message: "All messages sent successfully",
		Results: results,
	}, nil
}

func (d *Dispatcher) SendToGeneral(ctx context.Context, payload Payload) (*Result, error) {
	return d.send(ctx, "general", d.cfg.GeneralChatURL, payload)
}

func (d *Dispatcher) SendToDegen(ctx context.Context, payload Payload) (*Result, error) {
	return d.send(ctx, "degen", d.cfg.DegenChatURL, payload)
}

func (d *Dispatcher) SendToPremium(ctx context.Context, payload Payload) (*Result, error) {
	return d.send(ctx, "premium", d.cfg.PremiumChatURL, payload)
}

// SendSignalsToChats posts to the general and degen chats together.
func (d *Dispatcher) SendSignalsToChats(ctx context.Context, payload Payload) (*BatchResult, error) {
	return d.sendAll(ctx, payload, []target{
		{channel: "general", url: d.cfg.GeneralChatURL},
		{channel: "degen", url: d.cfg.DegenChatURL},
	})
}

func (d *Dispatcher) SendTestMessage(ctx context.Context) (*BatchResult, error) {
	return d.SendSignalsToChats(ctx, Payload{
		Content: "Hey chat, testing sending batch messages to both chats. You should see this in the general chat and the degen chat - server",
	})
}

// NotifyEntry announces an entry signal in the premium chat.
func (d *Dispatcher) NotifyEntry(ctx context.Context, sig externalmodel.TradingSignal) error {
	_, err := d.SendToPremium(ctx, Payload{Content: FormatSignalMessage(sig, d.loc)})
	return err
}

// NotifyExit announces an exit signal with its P&L in the premium chat.
func (d *Dispatcher) NotifyExit(ctx context.Context, sig externalmodel.TradingSignal, pnl float64, pnlDollars *float64) error {
	_, err := d.SendToPremium(ctx, Payload{Content: FormatExitMessage(sig, pnl, pnlDollars, d.loc)})
	return err
}

// FormatSignal renders sig with the dispatcher's timezone.
func (d *Dispatcher) FormatSignal(sig externalmodel.TradingSignal) string {
	return FormatSignalMessage(sig, d.loc)
}
