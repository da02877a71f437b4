package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"signalrouter/cmd/operator"
	"signalrouter/src/auth"
)

var Version string

func main() {
	_ = godotenv.Load()

	app := cli.NewApp()
	app.Name = "Signal Router CMD"
	app.Usage = "The signal router command line interface"
	app.Version = Version

	app.Commands = []cli.Command{
		accountsCMD,
		contractsCMD,
		positionsCMD,
		whopTestCMD,
		sessionCMD,
		hashPasswordCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	accountsCMD = cli.Command{
		Name:      "accounts",
		Usage:     "list broker accounts",
		Action:    accountsAction,
		ArgsUsage: "",
		Flags: []cli.Flag{
			cli.BoolTFlag{Name: "active", Usage: "only active accounts"},
		},
		Description: `Search the accounts visible to TOPSTEPX_USERNAME`,
	}
	contractsCMD = cli.Command{
		Name:      "contracts",
		Usage:     "search contracts",
		Action:    contractsAction,
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			cli.BoolFlag{Name: "live", Usage: "search live contracts"},
		},
		Description: `Search broker contracts, e.g. "contracts NQ"`,
	}
	positionsCMD = cli.Command{
		Name:        "positions",
		Usage:       "list open broker positions",
		Action:      positionsAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `List open positions for every account in TRADING_ACCOUNTS`,
	}
	whopTestCMD = cli.Command{
		Name:        "whoptest",
		Usage:       "send a test chat message",
		Action:      whopTestAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Post the batch test message to the general and degen chats`,
	}
	sessionCMD = cli.Command{
		Name:        "session",
		Usage:       "log in and show session state",
		Action:      sessionAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Authenticate with the default credentials and print the session cache`,
	}
	hashPasswordCMD = cli.Command{
		Name:        "hashpassword",
		Usage:       "hash a dashboard access password",
		Action:      hashPasswordAction,
		ArgsUsage:   "<password>",
		Flags:       []cli.Flag{},
		Description: `Print a bcrypt hash for ACCESS_PASSWORD_HASH`,
	}
)

func newOperator(cmd string) *operator.Operator {
	logrus.WithField("cmd", cmd).Info("Starting CMD")
	return operator.New(logrus.WithField("cmd", cmd))
}

func accountsAction(c *cli.Context) error {
	return newOperator("accounts").Accounts(c.BoolT("active"))
}

func contractsAction(c *cli.Context) error {
	return newOperator("contracts").Contracts(c.Args().First(), c.Bool("live"))
}

func positionsAction(_ *cli.Context) error {
	return newOperator("positions").Positions()
}

func whopTestAction(_ *cli.Context) error {
	return newOperator("whoptest").WhopTest()
}

func sessionAction(_ *cli.Context) error {
	return newOperator("session").Session()
}

func hashPasswordAction(c *cli.Context) error {
	hashed, err := auth.HashPassword(c.Args().First())
	if err != nil {
		logrus.WithError(err).Error("hash password failed")
		return err
	}
	fmt.Println(hashed)
	return nil
}
