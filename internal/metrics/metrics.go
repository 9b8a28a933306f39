package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds every weekcal collector. It is separate from the
	// global default so tests and embedders get a clean set.
	Registry = prometheus.NewRegistry()

	feedFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "weekcal",
		Name:      "feed_fetch_total",
		Help:      "Feed load attempts by source, resolution path and result",
	}, []string{"source", "path", "result"})

	dedupRemoved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "weekcal",
		Name:      "dedup_removed_total",
		Help:      "Events removed by cross-feed deduplication",
	}, []string{"group"})

	modelCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "weekcal",
		Name:      "model_calls_total",
		Help:      "Model calls by model and result kind",
	}, []string{"model", "result"})

	cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "weekcal",
		Name:      "cache_lookups_total",
		Help:      "Cache lookups by cache name and result",
	}, []string{"cache", "result"})

	matchOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "weekcal",
		Name:      "match_outcomes_total",
		Help:      "Fuzzy matcher outcomes",
	}, []string{"outcome"})
)

func init() {
	Registry.MustRegister(feedFetches, dedupRemoved, modelCalls, cacheLookups, matchOutcomes)
}

// FeedFetch records one feed load attempt.
func FeedFetch(source, path, result string) {
	feedFetches.WithLabelValues(source, path, result).Inc()
}

// DedupRemoved adds n removed duplicates for group.
func DedupRemoved(group string, n int) {
	if n <= 0 {
		return
	}
	dedupRemoved.WithLabelValues(group).Add(float64(n))
}

// ModelCall records one model attempt.
func ModelCall(model, result string) {
	modelCalls.WithLabelValues(model, result).Inc()
}

// CacheLookup records a cache hit or miss.
func CacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(cache, result).Inc()
}

// MatchOutcome records a matcher result.
func MatchOutcome(outcome string) {
	matchOutcomes.WithLabelValues(outcome).Inc()
}

// Handler exposes Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
