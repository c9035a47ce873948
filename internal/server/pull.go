package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/quantfeed/mbo-gateway/internal/book"
	"github.com/quantfeed/mbo-gateway/internal/market"
	"github.com/quantfeed/mbo-gateway/internal/record"
	"github.com/quantfeed/mbo-gateway/internal/tailcache"
	"github.com/quantfeed/mbo-gateway/pkg/observability"
)

// snapshotSlowThreshold is the LogSlowOperation threshold for the
// book-snapshot and aggregated-BBO handlers, which walk every price level
// at the requested depth rather than reading a single cached value.
const snapshotSlowThreshold = 5 * time.Millisecond

// PullRouter builds the mux.Router serving the pull endpoint and the
// supplemental book-snapshot endpoints. Middleware (CORS, rate limiting,
// logging, recovery) is applied by the caller, which wraps the returned
// handler.
func PullRouter(tc *tailcache.Cache, mkt *market.Market) *mux.Router {
	return PullRouterWithPerfLogger(tc, mkt, nil)
}

// PullRouterWithPerfLogger is PullRouter with an optional performance
// logger; when non-nil it records a warning for any book-snapshot or
// aggregated-BBO request slower than snapshotSlowThreshold.
func PullRouterWithPerfLogger(tc *tailcache.Cache, mkt *market.Market, perf *observability.PerformanceLogger) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/api/messages", messagesHandler(tc)).Methods(http.MethodGet)
	router.HandleFunc("/api/book/{instrument}/{publisher}/snapshot", bookSnapshotHandler(mkt, perf)).Methods(http.MethodGet)
	router.HandleFunc("/api/book/{instrument}/{publisher}/bbo", bboHandler(mkt)).Methods(http.MethodGet)
	router.HandleFunc("/api/book/{instrument}/aggregated-bbo", aggregatedBBOHandler(mkt, perf)).Methods(http.MethodGet)

	return router
}

// humanLevel mirrors book.PriceLevel but renders price as a decimal
// string rather than the raw fixed-point integer, for human diagnostics.
type humanLevel struct {
	Price string `json:"price"`
	Size  uint32 `json:"size"`
	Count uint32 `json:"count"`
}

func toHumanLevel(lvl *book.PriceLevel) *humanLevel {
	if lvl == nil {
		return nil
	}
	return &humanLevel{
		Price: record.PriceToDecimal(lvl.Price).String(),
		Size:  lvl.Size,
		Count: lvl.Count,
	}
}

// bboHandler serves GET /api/book/{instrument}/{publisher}/bbo with
// human-readable decimal prices, a diagnostic view distinct from the
// fixed-point wire format used elsewhere.
func bboHandler(mkt *market.Market) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		instrument, err := parseUint32(vars["instrument"])
		if err != nil {
			http.Error(w, "invalid instrument id", http.StatusBadRequest)
			return
		}
		publisher, err := parseUint16(vars["publisher"])
		if err != nil {
			http.Error(w, "invalid publisher id", http.StatusBadRequest)
			return
		}

		bid, ask := mkt.BBO(instrument, publisher)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(struct {
			Bid *humanLevel `json:"bid"`
			Ask *humanLevel `json:"ask"`
		}{Bid: toHumanLevel(bid), Ask: toHumanLevel(ask)})
	}
}

// messagesHandler serves the tail cache's sequence-sorted snapshot.
func messagesHandler(tc *tailcache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(tc.Snapshot())
	}
}

const defaultSnapshotDepth = 10

// bookSnapshotHandler serves GET /api/book/{instrument}/{publisher}/snapshot?depth=N.
func bookSnapshotHandler(mkt *market.Market, perf *observability.PerformanceLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		vars := mux.Vars(r)
		instrument, err := parseUint32(vars["instrument"])
		if err != nil {
			http.Error(w, "invalid instrument id", http.StatusBadRequest)
			return
		}
		publisher, err := parseUint16(vars["publisher"])
		if err != nil {
			http.Error(w, "invalid publisher id", http.StatusBadRequest)
			return
		}

		depth := defaultSnapshotDepth
		if raw := r.URL.Query().Get("depth"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				depth = parsed
			}
		}

		b := mkt.Book(instrument, publisher)
		if b == nil {
			http.Error(w, "unknown instrument/publisher", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(b.GetSnapshot(depth))

		if perf != nil {
			perf.LogSlowOperation(r.Context(), "book_snapshot", time.Since(start), snapshotSlowThreshold,
				map[string]interface{}{"instrument_id": instrument, "publisher_id": publisher, "depth": depth})
		}
	}
}

// aggregatedBBOHandler serves GET /api/book/{instrument}/aggregated-bbo.
func aggregatedBBOHandler(mkt *market.Market, perf *observability.PerformanceLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		vars := mux.Vars(r)
		instrument, err := parseUint32(vars["instrument"])
		if err != nil {
			http.Error(w, "invalid instrument id", http.StatusBadRequest)
			return
		}

		bid, ask := mkt.AggregatedBBO(instrument)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(struct {
			Bid *market.AggregatedLevel `json:"bid"`
			Ask *market.AggregatedLevel `json:"ask"`
		}{Bid: bid, Ask: ask})

		if perf != nil {
			perf.LogSlowOperation(r.Context(), "aggregated_bbo", time.Since(start), snapshotSlowThreshold,
				map[string]interface{}{"instrument_id": instrument})
		}
	}
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	return uint32(v), err
}

func parseUint16(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	return uint16(v), err
}
