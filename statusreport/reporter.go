// Package statusreport is the introspection/metrics surface adapted from
// stats/stats.go (which publishes cluster topology as JSON into an
// actor-based config store). This system has no client-facing config
// store to publish into, so the adaptation keeps the two concerns
// stats.go actually mixes together — JSON status snapshots and Prometheus
// gauges — and re-homes them behind a tiny debug HTTP listener, in the
// spirit of cmd/goshawkdb/main.go's own pprof debug endpoint.
package statusreport

import (
	"encoding/json"
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"paxfabric.io/server/status"
)

// Reporter exposes a component's Status() tree as JSON on /status and
// Prometheus gauges on /metrics.
type Reporter struct {
	logger log.Logger

	RegisteredPeers  prometheus.Gauge
	ConsensusPhase   prometheus.Gauge
	PromisesReceived prometheus.Gauge
	AcceptedReceived prometheus.Gauge

	subject StatusProvider
}

// StatusProvider is implemented by registry.Registry and process.Process.
type StatusProvider interface {
	Status(sc *status.Consumer)
}

// PeerCounter is implemented by both registry.Registry and process.Process;
// it backs the registered-peers gauge.
type PeerCounter interface {
	PeerCount() int
}

// ProposerMetrics is implemented by registry.Registry only — a Process has
// no proposer state — so the consensus-phase and Promise/Accepted gauges
// are left at zero on a Process Reporter.
type ProposerMetrics interface {
	ProposerMetrics() (phase, promisesReceived, acceptedReceived int)
}

// New constructs a Reporter for subject, registering its gauges against
// registry so multiple Reporters (Registry + Process in the same binary,
// e.g. in tests) don't collide.
func New(logger log.Logger, registry *prometheus.Registry, subject StatusProvider, namePrefix string) *Reporter {
	r := &Reporter{
		logger:  logger,
		subject: subject,
		RegisteredPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: namePrefix + "_registered_peers",
			Help: "Number of peers currently in the membership view.",
		}),
		ConsensusPhase: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: namePrefix + "_consensus_phase",
			Help: "Current Paxos proposer phase (0=NoConsensus,1=Phase1,2=Phase2,3=ConsensusReached). Registry only.",
		}),
		PromisesReceived: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: namePrefix + "_promises_received",
			Help: "Promise responses received in the proposer's current instance. Registry only.",
		}),
		AcceptedReceived: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: namePrefix + "_accepted_received",
			Help: "Accepted responses received in the proposer's current instance. Registry only.",
		}),
	}
	registry.MustRegister(r.RegisteredPeers, r.ConsensusPhase, r.PromisesReceived, r.AcceptedReceived)
	return r
}

// Handler returns an http.Handler serving /status (JSON status tree) and
// /metrics (Prometheus exposition format, via promhttp against the
// registry passed to New). Each /metrics scrape refreshes the gauges from
// the subject's current state first, so there is no separate polling loop
// to start or stop.
func (r *Reporter) Handler(promRegistry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", r.serveStatus)
	metricsHandler := promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})
	mux.Handle("/metrics", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.refresh()
		metricsHandler.ServeHTTP(w, req)
	}))
	return mux
}

// refresh pulls current counts from the subject via whichever optional
// metrics interfaces it implements.
func (r *Reporter) refresh() {
	if pc, ok := r.subject.(PeerCounter); ok {
		r.RegisteredPeers.Set(float64(pc.PeerCount()))
	}
	if pm, ok := r.subject.(ProposerMetrics); ok {
		phase, promises, accepted := pm.ProposerMetrics()
		r.ConsensusPhase.Set(float64(phase))
		r.PromisesReceived.Set(float64(promises))
		r.AcceptedReceived.Set(float64(accepted))
	}
}

func (r *Reporter) serveStatus(w http.ResponseWriter, req *http.Request) {
	sc := status.NewConsumer()
	r.subject.Status(sc)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"status": sc.String()}); err != nil {
		r.logger.Log("msg", "failed to write status response", "error", err)
	}
}
