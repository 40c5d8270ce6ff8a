package metrics

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	optimizationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carbonsense_optimizations_total",
			Help: "Optimization calls by model variant and outcome.",
		},
		[]string{"model", "outcome"},
	)
	savingsHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "carbonsense_fuel_savings_percent",
			Help:    "Reported fuel savings percent per optimization.",
			Buckets: prometheus.LinearBuckets(0, 2.5, 11),
		},
	)
	predictionFallbackCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "carbonsense_prediction_fallbacks_total",
			Help: "Learned predictions replaced by the rule-based model after a non-finite result.",
		},
	)
	modelReadyGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "carbonsense_model_ready",
			Help: "1 for the model variant currently serving predictions.",
		},
		[]string{"model"},
	)
	trainingR2Gauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "carbonsense_training_r2",
			Help: "Holdout R² of the last trained bundle.",
		},
		[]string{"target"},
	)
	requestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carbonsense_http_requests_total",
			Help: "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)
)

func init() {
	prometheus.MustRegister(optimizationCounter)
	prometheus.MustRegister(savingsHistogram)
	prometheus.MustRegister(predictionFallbackCounter)
	prometheus.MustRegister(modelReadyGauge)
	prometheus.MustRegister(trainingR2Gauge)
	prometheus.MustRegister(requestCounter)
}

// Recorder is the metrics sink used by the service and HTTP layers.
type Recorder struct{}

func (Recorder) Optimization(modelName string, converged bool, savingsPercent float64) {
	outcome := "converged"
	if !converged {
		outcome = "baseline_fallback"
	}
	optimizationCounter.WithLabelValues(modelName, outcome).Inc()
	savingsHistogram.Observe(savingsPercent)
}

func (Recorder) PredictionFallback() {
	predictionFallbackCounter.Inc()
}

func (Recorder) ModelPublished(modelName string) {
	modelReadyGauge.Reset()
	modelReadyGauge.WithLabelValues(modelName).Set(1)
}

func (Recorder) Trained(fuelR2, emissionR2 float64) {
	trainingR2Gauge.WithLabelValues("fuel").Set(fuelR2)
	trainingR2Gauge.WithLabelValues("emission").Set(emissionR2)
}

func (Recorder) Request(route string, code int) {
	requestCounter.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// StartServer serves /metrics on addr in the background.
func StartServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		slog.Info("starting metrics server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}
