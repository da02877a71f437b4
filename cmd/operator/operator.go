// Package operator implements the broker and chat maintenance commands of the CLI.
package operator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"signalrouter/src/connectors"
	"signalrouter/src/controller"
	"signalrouter/src/notification"
	"signalrouter/src/session"
)

type broker interface {
	session.Authenticator
	SearchAccounts(ctx context.Context, token string, onlyActiveAccounts bool) ([]connectors.Account, error)
	SearchOpenPositions(ctx context.Context, token string, accountID int64) ([]connectors.Position, error)
	SearchContracts(ctx context.Context, token, searchText string, live bool) ([]connectors.Contract, error)
}

type chat interface {
	SendTestMessage(ctx context.Context) (*notification.BatchResult, error)
}

// Operator runs one-shot commands against the broker with the router's configuration.
type Operator struct {
	Log      *logrus.Entry
	Out      io.Writer
	Broker   broker
	Chat     chat
	Router   controller.Config
	Sessions *session.Cache
	Config   *Config
}

// New builds an Operator from the environment.
func New(log *logrus.Entry) *Operator {
	connCfg := connectors.GetConfig()
	client := connectors.NewTopstepClient(connCfg.TopstepBaseURL, connCfg.TopstepTimeout)

	return &Operator{
		Log:      log,
		Out:      os.Stdout,
		Broker:   client,
		Chat:     notification.NewDispatcher(notification.GetConfig(), log),
		Router:   controller.GetConfig(),
		Sessions: session.NewCache(client, session.GetConfig(), log),
		Config:   GetConfig(),
	}
}

func (o *Operator) context() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if o.Config == nil || o.Config.CommandTimeout <= 0 {
		return ctx, stop
	}
	tctx, cancel := context.WithTimeout(ctx, o.Config.CommandTimeout)
	return tctx, func() {
		cancel()
		stop()
	}
}

func (o *Operator) token(ctx context.Context) (string, error) {
	if o.Router.DefaultUserName == "" || o.Router.DefaultAPIKey == "" {
		return "", fmt.Errorf("%w: set TOPSTEPX_USERNAME and TOPSTEPX_API_KEY", controller.ErrMissingCredentials)
	}
	return o.Sessions.GetToken(ctx, o.Router.DefaultUserName, o.Router.DefaultAPIKey, "")
}

func (o *Operator) print(v interface{}) error {
	enc := json.NewEncoder(o.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Accounts prints the broker accounts visible to the default credentials.
func (o *Operator) Accounts(onlyActive bool) error {
	ctx, cancel := o.context()
	defer cancel()

	token, err := o.token(ctx)
	if err != nil {
		return err
	}

	accounts, err := o.Broker.SearchAccounts(ctx, token, onlyActive)
	if err != nil {
		o.Log.WithError(err).Error("account search failed")
		return err
	}
	o.Log.WithField("count", len(accounts)).Info("accounts fetched")
	return o.print(accounts)
}

// Contracts prints contracts matching query.
func (o *Operator) Contracts(query string, live bool) error {
	if query == "" {
		return fmt.Errorf("contract query is required")
	}

	ctx, cancel := o.context()
	defer cancel()

	token, err := o.token(ctx)
	if err != nil {
		return err
	}

	contracts, err := o.Broker.SearchContracts(ctx, token, query, live)
	if err != nil {
		o.Log.WithError(err).Error("contract search failed")
		return err
	}
	return o.print(contracts)
}

// Positions prints the broker's open positions for every configured account.
func (o *Operator) Positions() error {
	ctx, cancel := o.context()
	defer cancel()

	token, err := o.token(ctx)
	if err != nil {
		return err
	}

	out := make(map[int64][]connectors.Position, len(o.Router.Accounts))
	for _, acc := range o.Router.Accounts {
		positions, err := o.Broker.SearchOpenPositions(ctx, token, acc.ID)
		if err != nil {
			o.Log.WithField("account_id", acc.ID).WithError(err).Error("position search failed")
			continue
		}
		out[acc.ID] = positions
	}
	return o.print(out)
}

// WhopTest posts the batch test message to the general and degen chats.
func (o *Operator) WhopTest() error {
	ctx, cancel := o.context()
	defer cancel()

	result, err := o.Chat.SendTestMessage(ctx)
	if err != nil {
		o.Log.WithError(err).Error("whop test failed")
		return err
	}
	return o.print(result)
}

// Session logs in with the default credentials and prints the cache state.
func (o *Operator) Session() error {
	ctx, cancel := o.context()
	defer cancel()

	if _, err := o.token(ctx); err != nil {
		return err
	}
	return o.print(o.Sessions.Snapshot())
}
