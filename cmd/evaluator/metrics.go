package main

import (
	"github.com/criyle/go-evaluator/envexec"
	"github.com/criyle/go-evaluator/judger"
	"github.com/criyle/go-evaluator/types"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "evaluator"

var (
	// 10ms -> 10min
	durationBuckets = []float64{
		0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600,
	}

	// 1ms -> 10s
	timeBuckets = []float64{
		0.001, 0.002, 0.005, 0.008, 0.010, 0.025, 0.050, 0.075, 0.1, 0.2,
		0.4, 0.6, 0.8, 1.0, 1.5, 2, 5, 10,
	}

	// 4k (1<<12) -> 4g (1<<32)
	memoryBucket = prometheus.ExponentialBuckets(1<<12, 2, 21)

	evaluationCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "evaluations_total",
		Help:      "Number of finished evaluations by final state and failure kind",
	}, []string{"state", "failure"})

	evaluationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "evaluation_duration_seconds",
		Help:      "Histogram for the wall time of an evaluation",
		Buckets:   durationBuckets,
	}, []string{"state"})

	testcaseCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "testcases_total",
		Help:      "Number of testcases executed by outcome",
	}, []string{"outcome"})

	testcaseTimeHist = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "testcase_time_seconds",
		Help:      "Histogram for the testcase cpu time",
		Buckets:   timeBuckets,
	}, []string{"outcome"})

	testcaseMemHist = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "testcase_memory_bytes",
		Help:      "Histogram for the testcase memory",
		Buckets:   memoryBucket,
	}, []string{"outcome"})

	compileCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "compilations_total",
		Help:      "Number of compilations by outcome",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(evaluationCount, evaluationDuration)
	prometheus.MustRegister(testcaseCount, testcaseTimeHist, testcaseMemHist)
	prometheus.MustRegister(compileCount)
}

func initPoolMetrics(p *envexec.Pool) {
	prometheus.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "runner_slots",
			Help:      "Number of runner slots",
		}, func() float64 { return float64(p.Size()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "runner_active",
			Help:      "Number of processes currently running",
		}, func() float64 { return float64(p.Active()) }),
	)
}

func reportObserve(r *judger.Report) {
	failure := ""
	if r.Failure != nil {
		failure = r.Failure.Kind.String()
	}
	state := r.State.String()
	evaluationCount.WithLabelValues(state, failure).Inc()
	evaluationDuration.WithLabelValues(state).Observe(r.Duration.Seconds())

	if r.Compilation != nil {
		compileCount.WithLabelValues(r.Compilation.Outcome.String()).Inc()
	}
	if r.Evaluation == nil {
		return
	}
	for _, s := range r.Evaluation.Subtasks {
		for _, tc := range s.Testcases {
			outcome := tc.Outcome.String()
			testcaseCount.WithLabelValues(outcome).Inc()
			if tc.Outcome == types.TestcaseNone {
				continue
			}
			testcaseTimeHist.WithLabelValues(outcome).Observe(tc.Time.Seconds())
			testcaseMemHist.WithLabelValues(outcome).Observe(float64(tc.Memory))
		}
	}
}
