package connectors

import "fmt"

// fallbackMessages are used when a failed ProjectX response carries no errorMessage.
var fallbackMessages = map[string]string{
	"/Auth/loginKey":          "Authentication failed",
	"/Auth/validate":          "Session validation failed",
	"/Account/search":         "Failed to search accounts",
	"/Position/searchOpen":    "Failed to search open positions",
	"/Position/closeContract": "Failed to close position",
	"/Order/place":            "Order placement failed",
	"/Order/searchOpen":       "Failed to search open orders",
	"/Order/cancel":           "Failed to cancel order",
	"/Contract/search":        "Failed to fetch contracts",
}

// GetErrorMsg returns the generic failure message for an endpoint path.
func GetErrorMsg(path string) string {
	if msg, ok := fallbackMessages[path]; ok {
		return msg
	}
	return fmt.Sprintf("Request to %s failed", path)
}
