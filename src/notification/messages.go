package notification

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"signalrouter/src/externalmodel"
	"signalrouter/src/utils"
)

func priceLabel(price *float64) string {
	if price == nil || *price == 0 {
		return "Market"
	}
	return strconv.FormatFloat(*price, 'f', -1, 64)
}

// FormatSignalMessage builds the chat text for an alert, one template per comment.
func FormatSignalMessage(sig externalmodel.TradingSignal, loc *time.Location) string {
	formattedTime := utils.FormatSignalTime(sig.TimeOfMessage, loc)
	price := priceLabel(sig.Price)

	switch sig.Comment {
	case "go_long":
		return fmt.Sprintf("🟢 BUY SIGNAL - GO LONG 🟢\n\nSymbol: %s\nTimeframe: %s\nAction: GO LONG\nDirection: BUY\nTime: %s\nPrice: %s\n\n%s",
			sig.Symbol, sig.Timeframe, formattedTime, price, sig.Text)
	case "go_short":
		return fmt.Sprintf("🔴 SELL SIGNAL - GO SHORT 🔴\n\nSymbol: %s\nTimeframe: %s\nAction: GO SHORT\nDirection: SELL\nTime: %s\nPrice: %s\n\n%s",
			sig.Symbol, sig.Timeframe, formattedTime, price, sig.Text)
	case "exit_long":
		return fmt.Sprintf("❌ EXIT SIGNAL - CLOSE LONG 🔴\n\nSymbol: %s\nTimeframe: %s\nAction: EXIT LONG\nDirection: SELL\nTime: %s\nPrice: %s\n\n%s",
			sig.Symbol, sig.Timeframe, formattedTime, price, sig.Text)
	case "exit_short":
		return fmt.Sprintf("❌ EXIT SIGNAL - CLOSE SHORT 🟢\n\nSymbol: %s\nTimeframe: %s\nAction: EXIT SHORT\nDirection: BUY\nTime: %s\nPrice: %s\n\n%s",
			sig.Symbol, sig.Timeframe, formattedTime, price, sig.Text)
	default:
		direction := strings.ToUpper(sig.Direction)
		if direction == "" {
			direction = "UNKNOWN"
		}
		return fmt.Sprintf("📊 TRADING SIGNAL 📊\n\nSymbol: %s\nTimeframe: %s\nComment: %s\nDirection: %s\nTime: %s\nPrice: %s\n\n%s",
			sig.Symbol, sig.Timeframe, sig.Comment, direction, formattedTime, price, sig.Text)
	}
}

// FormatExitMessage is the exit template followed by the realized P&L.
func FormatExitMessage(sig externalmodel.TradingSignal, pnl float64, pnlDollars *float64, loc *time.Location) string {
	var b strings.Builder
	b.WriteString(FormatSignalMessage(sig, loc))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("P&L: %+.2f pts", pnl))
	if pnlDollars != nil {
		b.WriteString(fmt.Sprintf(" ($%+.2f)", *pnlDollars))
	}
	return b.String()
}
