package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	logger "github.com/sirupsen/logrus"

	"signalrouter/src/auth"
	"signalrouter/src/connectors"
	"signalrouter/src/controller"
	"signalrouter/src/database"
	"signalrouter/src/notification"
	"signalrouter/src/repository"
	"signalrouter/src/server"
	"signalrouter/src/session"
	"signalrouter/src/stream"
)

func SetupLogger(cfg database.Config) {
	level, err := logger.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = logger.DebugLevel // fallback seguro
	}

	logger.SetLevel(level)
	if strings.EqualFold(cfg.LogFormat, "json") {
		logger.SetFormatter(&logger.JSONFormatter{})
		return
	}
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	// .env is optional; real environment variables win
	if err := godotenv.Load(); err != nil {
		logger.WithError(err).Debug("no .env file loaded")
	}

	SetupLogger(database.GetConfig())
	serverCfg := server.GetConfig()
	defer handlePanic(serverCfg.AppName)

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	log := logger.WithField("app", serverCfg.AppName)

	connCfg := connectors.GetConfig()
	broker := connectors.NewTopstepClient(connCfg.TopstepBaseURL, connCfg.TopstepTimeout)

	sessions := session.NewCache(broker, session.GetConfig(), log)
	sessions.Start()
	defer sessions.Stop()

	hub := stream.NewHub(log)
	defer hub.Close()

	notifier := notification.NewDispatcher(notification.GetConfig(), log)
	ledger := repository.NewLedgerRepository()
	exceptions := repository.NewExceptionRepository()

	routerCfg := controller.GetConfig()
	router := controller.NewSignalController(routerCfg, sessions, broker, ledger,
		controller.WithNotifier(notifier),
		controller.WithEvents(hub),
		controller.WithExceptionRepository(exceptions),
		controller.WithLogger(log),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if connCfg.UserHubEnabled {
		accountIDs := make([]int64, 0, len(routerCfg.Accounts))
		for _, acc := range routerCfg.Accounts {
			accountIDs = append(accountIDs, acc.ID)
		}
		userHub := connectors.NewUserHub(
			connCfg.UserHubURL,
			router.DefaultToken,
			accountIDs,
			func(ev connectors.HubEvent) { hub.PublishRaw(stream.EventBroker+"."+ev.Target, ev.Data) },
			connCfg.UserHubReconnect,
			log,
		)
		go func() {
			if err := userHub.Run(ctx); err != nil {
				log.WithError(err).Error("user hub stopped with error")
			}
		}()
	}

	server.StartServer(serverCfg.Port, server.NewRouter(server.Deps{
		Router:     router,
		Broker:     broker,
		Sessions:   sessions,
		Ledger:     ledger,
		Exceptions: exceptions,
		Notifier:   notifier,
		Stream:     hub,
		Password:   auth.NewPasswordVerifier(auth.GetConfig()),
	}))
}

func handlePanic(appName string) {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", appName))
		//nolint
		time.Sleep(time.Second * 5)
	}
}
