package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"signalrouter/src/controller"
	"signalrouter/src/externalmodel"
)

type signalRouter interface {
	Route(ctx context.Context, sig externalmodel.TradingSignal) (*controller.RouteResponse, error)
}

// SignalHandler accepts a TradingView alert and routes it to every account.
// Unknown symbol or action -> 400, duplicate inside the dedup window -> 409.
func SignalHandler(router signalRouter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := requestLogger(r)

		var sig externalmodel.TradingSignal
		if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
			log.WithError(err).Warn("invalid signal payload")
			writeError(w, r, http.StatusBadRequest, "invalid JSON payload")
			return
		}

		resp, err := router.Route(r.Context(), sig)
		if err != nil {
			switch {
			case controller.IsInputError(err):
				writeError(w, r, http.StatusBadRequest, err.Error())
			case errors.Is(err, controller.ErrDuplicateSignal):
				writeError(w, r, http.StatusConflict, err.Error())
			default:
				log.WithError(err).Error("signal routing failed")
				writeError(w, r, http.StatusInternalServerError, err.Error())
			}
			return
		}

		writeJSON(w, r, http.StatusOK, resp)
	}
}
