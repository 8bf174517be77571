package opt

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsStore(t *testing.T) {
	RecordMetrics("CMT1X", "run-a", Metrics{OracleCalls: 3, OracleTime: time.Second})
	RecordMetrics("CMT1X", "run-b", Metrics{OracleCalls: 5})
	RecordMetrics("CON3-0", "run-c", Metrics{OracleFailures: 1})

	m, ok := GetMetrics("run-b")
	assert.True(t, ok)
	assert.Equal(t, 5, m.OracleCalls)
	_, ok = GetMetrics("run-z")
	assert.False(t, ok)

	byRun := InstanceMetrics("CMT1X")
	assert.Len(t, byRun, 2)
	assert.Equal(t, time.Second, byRun["run-a"].OracleTime)
}

func TestMetricsStoreEvictsOldestRuns(t *testing.T) {
	RecordMetrics("CMT2X", "evict-first", Metrics{OracleCalls: 1})
	for i := 0; i < MaxRecordedRuns; i++ {
		RecordMetrics("CMT2X", fmt.Sprintf("evict-%d", i), Metrics{OracleCalls: i})
	}
	_, ok := GetMetrics("evict-first")
	assert.False(t, ok)
	m, ok := GetMetrics(fmt.Sprintf("evict-%d", MaxRecordedRuns-1))
	assert.True(t, ok)
	assert.Equal(t, MaxRecordedRuns-1, m.OracleCalls)
	assert.Len(t, InstanceMetrics("CMT2X"), MaxRecordedRuns)

	// recording a run again does not duplicate it
	RecordMetrics("CMT2X", "evict-5", Metrics{OracleCalls: 50})
	m, _ = GetMetrics("evict-5")
	assert.Equal(t, 50, m.OracleCalls)
	assert.Len(t, InstanceMetrics("CMT2X"), MaxRecordedRuns)
}
