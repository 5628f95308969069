package client

import "testing"

func TestMetricsRecordersDoNotPanic(t *testing.T) {
	m := NewMetrics()

	m.RecordSent("AUTH")
	m.RecordReceived("REPLY")
	m.RecordRetransmission()
	m.RecordDuplicateDropped()
	m.RecordConfirmationSent()
}
