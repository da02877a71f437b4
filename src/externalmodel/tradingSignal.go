package externalmodel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// TradingSignal is the alert body posted by TradingView.
type TradingSignal struct {
	Text          string   `json:"text"`
	Direction     string   `json:"direction"` // buy | sell
	Comment       string   `json:"comment"`   // go_long | exit_long | go_short | exit_short
	Timeframe     string   `json:"timeframe"`
	TimeOfMessage string   `json:"time_Of_Message"`
	Symbol        string   `json:"symbol"`
	Price         *float64 `json:"price,omitempty"`
}

// UnmarshalJSON accepts the price either as a number or as a quoted number,
// since alert templates render {{close}} both ways.
func (s *TradingSignal) UnmarshalJSON(b []byte) error {
	type alias TradingSignal
	aux := struct {
		*alias
		Price json.RawMessage `json:"price"`
	}{alias: (*alias)(s)}

	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}

	s.Price = nil
	raw := bytes.TrimSpace(aux.Price)
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	if raw[0] == '"' {
		str, err := strconv.Unquote(string(raw))
		if err != nil {
			return fmt.Errorf("price: %w", err)
		}
		str = strings.TrimSpace(str)
		if str == "" {
			return nil
		}
		v, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return fmt.Errorf("price: invalid number %q", str)
		}
		s.Price = &v
		return nil
	}

	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("price: %w", err)
	}
	s.Price = &v
	return nil
}

// PriceOrZero returns the alert price, 0 when absent.
func (s TradingSignal) PriceOrZero() float64 {
	if s.Price == nil {
		return 0
	}
	return *s.Price
}
