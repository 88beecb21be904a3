package render

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/mrebazaUNIFIED/loanbridge-relayer/logging"
)

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, res interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	if pretty, _ := strconv.ParseBool(r.URL.Query().Get("pretty")); pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(envelope{Success: true, Data: res}); err != nil {
		logging.LoggerFromContext(r.Context()).WithError(err).Error("failed to marshal JSON result")
	}
}

func Error(w http.ResponseWriter, r *http.Request, status int, err error) {
	logger := logging.LoggerFromContext(r.Context())
	logger.WithError(err).Error("request handling failed")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err2 := json.NewEncoder(w).Encode(envelope{Success: false, Error: err.Error()}); err2 != nil {
		logger.WithError(err2).Error("failed to marshal JSON error")
	}
}
