// Package metrics exposes Prometheus instrumentation for the live bot.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BotState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dipbot_state",
		Help: "Current lifecycle state, 1 for the active state and 0 otherwise.",
	}, []string{"state"})

	LastPrice = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dipbot_last_price",
		Help: "Last traded price seen on the push feed.",
	})

	BarsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dipbot_bars_total",
		Help: "Number of 1-minute bars closed this run.",
	})

	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dipbot_orders_total",
		Help: "Orders submitted, by kind.",
	}, []string{"kind"})

	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dipbot_trades_total",
		Help: "Completed trade cycles, by exit.",
	}, []string{"exit"})
)

// SetState flips the state gauge so exactly one label reports 1.
func SetState(active string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == active {
			v = 1.0
		}
		BotState.WithLabelValues(s).Set(v)
	}
}

// Serve starts the HTTP listener with /metrics and /healthz. It returns the
// server so the caller can shut it down.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go srv.ListenAndServe()
	return srv
}
