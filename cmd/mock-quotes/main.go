package main

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/josh-kwaku/brokerage-ledger/internal/logging"
)

const days = 5

func main() {
	logging.Init("mock-quotes", "info", os.Getenv("APP_ENV"))

	addr := ":8081"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /v8/finance/chart/{symbol}", handleChart)

	slog.Info("mock quotes started", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// handleChart serves a deterministic daily series for any symbol. A symbol
// starting with "UNKNOWN" gets a 404 so callers can exercise the failure path.
func handleChart(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	if strings.HasPrefix(symbol, "UNKNOWN") {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"chart": map[string]any{
				"result": nil,
				"error":  map[string]string{"code": "Not Found", "description": "No data found, symbol may be delisted"},
			},
		})
		return
	}

	h := fnv.New32a()
	h.Write([]byte(symbol))
	seed := h.Sum32()
	base := 10 + int64(seed%49000)/100

	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	timestamps := make([]int64, 0, days)
	closes := make([]json.Number, 0, days)
	for i := days - 1; i >= 0; i-- {
		timestamps = append(timestamps, midnight.AddDate(0, 0, -i).Unix())
		cents := base*100 + int64((seed>>uint(i))%200) - 100
		closes = append(closes, json.Number(strconv.FormatInt(cents/100, 10)+"."+fmt.Sprintf("%02d", cents%100)))
	}

	slog.Info("chart served", "symbol", symbol, "range", r.URL.Query().Get("range"))
	writeJSON(w, http.StatusOK, map[string]any{
		"chart": map[string]any{
			"result": []any{map[string]any{
				"meta":      map[string]string{"symbol": symbol, "currency": "EUR"},
				"timestamp": timestamps,
				"indicators": map[string]any{
					"quote": []any{map[string]any{"close": closes}},
				},
			}},
			"error": nil,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
