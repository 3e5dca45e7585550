package crypto

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var keygenDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "jwcrypto_keygen_duration_seconds",
	Help:    "Time spent generating key pairs",
	Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
}, []string{"algorithm", "keysize"})

var keygenFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "jwcrypto_keygen_failures_total",
	Help: "Key pair generations that did not produce a key",
}, []string{"algorithm", "reason"})

var verifyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "jwcrypto_verify_total",
	Help: "Signature verifications by outcome",
}, []string{"algorithm", "result"})

func observeKeygen(p *Params, seconds float64) {
	keygenDuration.WithLabelValues(p.algorithm.String(), strconv.Itoa(p.keySize)).Observe(seconds)
}

// observeKeygenFailure folds unregistered codes into one label value so
// callers cannot grow the series set.
func observeKeygenFailure(alg Algorithm, reason string) {
	label := alg.String()
	if !alg.IsValid() {
		label = "unknown"
	}
	keygenFailures.WithLabelValues(label, reason).Inc()
}

func observeVerify(p *Params, valid bool) {
	result := "invalid"
	if valid {
		result = "valid"
	}
	verifyTotal.WithLabelValues(p.algorithm.String(), result).Inc()
}

func observeMalformedSignature(p *Params) {
	verifyTotal.WithLabelValues(p.algorithm.String(), "malformed").Inc()
}
