package controller

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// TradingAccount is one broker account the router fans signals out to.
// Empty credentials fall back to the configured defaults.
type TradingAccount struct {
	ID       int64
	UserName string
	APIKey   string
}

// AccountList decodes TRADING_ACCOUNTS: "id[:user:apiKey],..."
type AccountList []TradingAccount

func (l *AccountList) Decode(value string) error {
	var out AccountList
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.SplitN(entry, ":", 3)
		id, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid account id %q: %w", parts[0], err)
		}

		acc := TradingAccount{ID: id}
		switch len(parts) {
		case 1:
		case 3:
			acc.UserName = strings.TrimSpace(parts[1])
			acc.APIKey = strings.TrimSpace(parts[2])
		default:
			return fmt.Errorf("invalid account entry %q: expected id or id:user:apiKey", entry)
		}
		out = append(out, acc)
	}
	*l = out
	return nil
}

// SymbolMap decodes "SYMBOL:CONTRACT,..." pairs.
type SymbolMap map[string]string

func (m *SymbolMap) Decode(value string) error {
	out := SymbolMap{}
	for _, pair := range splitPairs(value) {
		if pair[1] == "" {
			return fmt.Errorf("missing contract for %s", pair[0])
		}
		out[pair[0]] = pair[1]
	}
	*m = out
	return nil
}

// IntMap decodes "KEY:N,..." pairs.
type IntMap map[string]int

func (m *IntMap) Decode(value string) error {
	out := IntMap{}
	for _, pair := range splitPairs(value) {
		n, err := strconv.Atoi(pair[1])
		if err != nil {
			return fmt.Errorf("invalid quantity for %s: %w", pair[0], err)
		}
		out[pair[0]] = n
	}
	*m = out
	return nil
}

// FloatMap decodes "KEY:X,..." pairs.
type FloatMap map[string]float64

func (m *FloatMap) Decode(value string) error {
	out := FloatMap{}
	for _, pair := range splitPairs(value) {
		f, err := strconv.ParseFloat(pair[1], 64)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", pair[0], err)
		}
		out[pair[0]] = f
	}
	*m = out
	return nil
}

// Symbols such as "NQ1!" never contain ':' so the last colon splits key and value.
// Keys are normalized the same way alert symbols are.
func splitPairs(value string) [][2]string {
	var pairs [][2]string
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		i := strings.LastIndex(entry, ":")
		if i <= 0 {
			continue
		}
		pairs = append(pairs, [2]string{NormalizeSymbol(entry[:i]), strings.TrimSpace(entry[i+1:])})
	}
	return pairs
}

type Config struct {
	DefaultUserName    string            `envconfig:"TOPSTEPX_USERNAME"`
	DefaultAPIKey      string            `envconfig:"TOPSTEPX_API_KEY"`
	Accounts           AccountList       `envconfig:"TRADING_ACCOUNTS"`
	ContractMap        SymbolMap         `envconfig:"CONTRACT_MAP" default:"NQ1!:CON.F.US.ENQ.U25,MNQ1!:CON.F.US.MNQ.U25,ES1!:CON.F.US.EP.U25,MES1!:CON.F.US.MES.U25,XAUUSD:CON.F.US.MGC.Q25"`
	QuantityMap        IntMap            `envconfig:"QUANTITY_MAP" default:"NQ1!:1,MNQ1!:1,ES1!:1,MES1!:1,XAUUSD:1"`
	PointValueMap      FloatMap          `envconfig:"POINT_VALUE_MAP" default:"NQ1!:20,MNQ1!:2,ES1!:50,MES1!:5,XAUUSD:10"`
	PremiumSymbol      string            `envconfig:"PREMIUM_SYMBOL" default:"NQ1!"`
	DedupWindow        time.Duration     `envconfig:"SIGNAL_DEDUP_WINDOW" default:"0s"`
	AccountConcurrency int               `envconfig:"ACCOUNT_CONCURRENCY" default:"4"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// credentials resolves the login pair for acc.
func (c Config) credentials(acc TradingAccount) (string, string, error) {
	userName, apiKey := acc.UserName, acc.APIKey
	if userName == "" || apiKey == "" {
		userName, apiKey = c.DefaultUserName, c.DefaultAPIKey
	}
	if userName == "" || apiKey == "" {
		return "", "", fmt.Errorf("%w: account %d", ErrMissingCredentials, acc.ID)
	}
	return userName, apiKey, nil
}
