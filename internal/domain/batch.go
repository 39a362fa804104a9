package domain

// Batch is the transient in-flight accumulation between flushes: the decoded
// events in consumption order plus the anomaly records derived from them.
// A batch is handed off as a whole and never reused after flush.
type Batch struct {
	Events    []*TelemetryEvent
	Anomalies []*AnomalyRecord
}

func (b *Batch) Empty() bool {
	return len(b.Events) == 0
}
