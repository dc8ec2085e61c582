package node

// Metric keys emitted by the runtime.
var (
	MetricRecordsIn  = []string{"node", "records", "in"}
	MetricRecordsOut = []string{"node", "records", "out"}
	MetricWakeUps    = []string{"node", "wake_ups"}
	MetricStateTime  = []string{"node", "state", "handle"}
)
