package metrics

import (
	"gemini-rotator/pkg/gemini"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal  *prometheus.CounterVec
	rotationsTotal *prometheus.CounterVec
	attemptsHist   *prometheus.HistogramVec

	metricsOnce sync.Once
)

// Init registers the rotation metrics with the default registry. Safe to
// call more than once.
func Init() {
	metricsOnce.Do(func() {
		requestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gemini_rotator_requests_total",
				Help: "Gemini operations by final outcome",
			},
			[]string{"operation", "outcome"},
		)

		rotationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gemini_rotator_key_rotations_total",
				Help: "Key rotations triggered by failed attempts",
			},
			[]string{"operation", "reason"},
		)

		attemptsHist = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gemini_rotator_attempts",
				Help:    "Attempts needed by successful operations",
				Buckets: []float64{1, 2, 3, 5, 8},
			},
			[]string{"operation"},
		)
	})
}

// Recorder implements gemini.Observer on top of the Prometheus collectors.
type Recorder struct{}

var _ gemini.Observer = (*Recorder)(nil)

func NewRecorder() *Recorder {
	Init()
	return &Recorder{}
}

func (r *Recorder) Succeeded(op string, attempt int) {
	requestsTotal.WithLabelValues(op, "success").Inc()
	attemptsHist.WithLabelValues(op).Observe(float64(attempt + 1))
}

func (r *Recorder) Rotated(op string, kind gemini.ErrorKind) {
	rotationsTotal.WithLabelValues(op, kind.String()).Inc()
}

func (r *Recorder) Failed(op string, kind gemini.ErrorKind) {
	requestsTotal.WithLabelValues(op, "error_"+kind.String()).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until the server fails.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return http.ListenAndServe(addr, mux)
}
