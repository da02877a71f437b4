package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"signalrouter/src/connectors"
	"signalrouter/src/controller"
)

// TokenFunc yields a session token for the dashboard's broker calls.
type TokenFunc func(ctx context.Context) (string, error)

type dashboardBroker interface {
	SearchAccounts(ctx context.Context, token string, onlyActiveAccounts bool) ([]connectors.Account, error)
	GetAccount(ctx context.Context, token string, accountID int64) (*connectors.Account, error)
	SearchOpenPositions(ctx context.Context, token string, accountID int64) ([]connectors.Position, error)
	CloseContract(ctx context.Context, token string, accountID int64, contractID string) error
	SearchOpenOrders(ctx context.Context, token string, accountID int64) ([]connectors.Order, error)
	CancelOrder(ctx context.Context, token string, accountID, orderID int64) error
	SearchContracts(ctx context.Context, token, searchText string, live bool) ([]connectors.Contract, error)
}

// brokerStatus maps a broker or credential failure to an HTTP status.
func brokerStatus(err error) int {
	var be *connectors.BrokerError
	switch {
	case errors.Is(err, controller.ErrMissingCredentials):
		return http.StatusServiceUnavailable
	case errors.As(err, &be) && be.StatusCode == http.StatusNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func accountIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "accountId"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, "invalid accountId")
		return 0, false
	}
	return id, true
}

// withToken resolves a token or writes the failure and returns false.
func withToken(w http.ResponseWriter, r *http.Request, tokens TokenFunc) (string, bool) {
	token, err := tokens(r.Context())
	if err != nil {
		requestLogger(r).WithError(err).Error("failed to obtain session token")
		writeError(w, r, brokerStatus(err), err.Error())
		return "", false
	}
	return token, true
}

func SearchAccountsHandler(broker dashboardBroker, tokens TokenFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		onlyActive := true
		if v := r.URL.Query().Get("onlyActive"); v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				writeError(w, r, http.StatusBadRequest, "invalid onlyActive")
				return
			}
			onlyActive = parsed
		}

		token, ok := withToken(w, r, tokens)
		if !ok {
			return
		}

		accounts, err := broker.SearchAccounts(r.Context(), token, onlyActive)
		if err != nil {
			requestLogger(r).WithError(err).Error("failed to search accounts")
			writeError(w, r, brokerStatus(err), err.Error())
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]interface{}{"success": true, "accounts": accounts})
	}
}

func GetAccountHandler(broker dashboardBroker, tokens TokenFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := accountIDParam(w, r)
		if !ok {
			return
		}
		token, ok := withToken(w, r, tokens)
		if !ok {
			return
		}

		account, err := broker.GetAccount(r.Context(), token, accountID)
		if err != nil {
			requestLogger(r).WithError(err).Error("failed to fetch account")
			writeError(w, r, brokerStatus(err), err.Error())
			return
		}
		if account == nil {
			writeError(w, r, http.StatusNotFound, "account not found")
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]interface{}{"success": true, "account": account})
	}
}

func SearchPositionsHandler(broker dashboardBroker, tokens TokenFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := accountIDParam(w, r)
		if !ok {
			return
		}
		token, ok := withToken(w, r, tokens)
		if !ok {
			return
		}

		positions, err := broker.SearchOpenPositions(r.Context(), token, accountID)
		if err != nil {
			requestLogger(r).WithError(err).Error("failed to search positions")
			writeError(w, r, brokerStatus(err), err.Error())
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]interface{}{"success": true, "positions": positions})
	}
}

type closePositionRequest struct {
	ContractID string `json:"contractId"`
}

// ClosePositionHandler closes one contract on one account from the dashboard.
func ClosePositionHandler(broker dashboardBroker, tokens TokenFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := accountIDParam(w, r)
		if !ok {
			return
		}

		var req closePositionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.ContractID) == "" {
			writeError(w, r, http.StatusBadRequest, "contractId is required")
			return
		}

		token, ok := withToken(w, r, tokens)
		if !ok {
			return
		}

		log := requestLogger(r).WithFields(map[string]interface{}{
			"account_id":  accountID,
			"contract_id": req.ContractID,
		})
		if err := broker.CloseContract(r.Context(), token, accountID, req.ContractID); err != nil {
			log.WithError(err).Error("manual close failed")
			writeError(w, r, brokerStatus(err), err.Error())
			return
		}

		log.Info("position closed manually")
		writeJSON(w, r, http.StatusOK, map[string]interface{}{
			"success":    true,
			"accountId":  accountID,
			"contractId": req.ContractID,
		})
	}
}

func SearchOrdersHandler(broker dashboardBroker, tokens TokenFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := accountIDParam(w, r)
		if !ok {
			return
		}
		token, ok := withToken(w, r, tokens)
		if !ok {
			return
		}

		orders, err := broker.SearchOpenOrders(r.Context(), token, accountID)
		if err != nil {
			requestLogger(r).WithError(err).Error("failed to search orders")
			writeError(w, r, brokerStatus(err), err.Error())
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]interface{}{"success": true, "orders": orders})
	}
}

type cancelOrderRequest struct {
	AccountID int64 `json:"accountId"`
	OrderID   int64 `json:"orderId"`
}

func CancelOrderHandler(broker dashboardBroker, tokens TokenFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cancelOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountID <= 0 || req.OrderID <= 0 {
			writeError(w, r, http.StatusBadRequest, "accountId and orderId are required")
			return
		}

		token, ok := withToken(w, r, tokens)
		if !ok {
			return
		}

		if err := broker.CancelOrder(r.Context(), token, req.AccountID, req.OrderID); err != nil {
			requestLogger(r).WithError(err).Error("failed to cancel order")
			writeError(w, r, brokerStatus(err), err.Error())
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]interface{}{"success": true, "orderId": req.OrderID})
	}
}

func SearchContractsHandler(broker dashboardBroker, tokens TokenFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := strings.TrimSpace(r.URL.Query().Get("q"))
		if query == "" {
			writeError(w, r, http.StatusBadRequest, "q is required")
			return
		}
		live := r.URL.Query().Get("live") == "true"

		token, ok := withToken(w, r, tokens)
		if !ok {
			return
		}

		contracts, err := broker.SearchContracts(r.Context(), token, query, live)
		if err != nil {
			requestLogger(r).WithError(err).Error("failed to search contracts")
			writeError(w, r, brokerStatus(err), err.Error())
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]interface{}{"success": true, "contracts": contracts})
	}
}
