package opt

import "sync"

// MaxRecordedRuns bounds the runs kept by RecordMetrics; the oldest are
// evicted first.
const MaxRecordedRuns = 1024

type recordedRun struct {
	instance string
	metrics  Metrics
}

var (
	metricsMu   sync.Mutex
	recorded    = map[string]recordedRun{} // run id -> counters
	recordOrder []string                   // run ids by record time
)

// RecordMetrics keeps the oracle counters of a finished run for later
// inspection by the service.
func RecordMetrics(instance, runID string, m Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if _, ok := recorded[runID]; !ok {
		recordOrder = append(recordOrder, runID)
	}
	recorded[runID] = recordedRun{instance: instance, metrics: m}
	for len(recordOrder) > MaxRecordedRuns {
		delete(recorded, recordOrder[0])
		recordOrder = recordOrder[1:]
	}
}

// GetMetrics returns the counters recorded for a run.
func GetMetrics(runID string) (Metrics, bool) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	r, ok := recorded[runID]
	return r.metrics, ok
}

// InstanceMetrics returns the recorded counters of every run on instance,
// keyed by run id.
func InstanceMetrics(instance string) map[string]Metrics {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	out := map[string]Metrics{}
	for id, r := range recorded {
		if r.instance == instance {
			out[id] = r.metrics
		}
	}
	return out
}
