package metrics

import (
	"testing"
	"time"
)

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector

	// Must not panic.
	c.RecordOperation("upload", time.Second, true)
	c.RecordTransfer("download", 1024)
	c.RecordRetry("SERVER_TRANSIENT")
	c.RecordRateLimitWait()

	if c.Registry() != nil {
		t.Error("nil collector should have no registry")
	}
}

func TestRecordOperation(t *testing.T) {
	c := NewCollector("test")

	c.RecordOperation("upload", 250*time.Millisecond, true)
	c.RecordOperation("upload", 100*time.Millisecond, false)
	c.RecordTransfer("upload", 4096)
	c.RecordRetry("RATE_LIMITED")
	c.RecordRateLimitWait()

	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	found := map[string]bool{}
	for _, fam := range families {
		found[fam.GetName()] = true
	}
	for _, want := range []string{
		"test_operations_total",
		"test_operation_duration_seconds",
		"test_transfer_bytes_total",
		"test_retries_total",
		"test_rate_limit_waits_total",
	} {
		if !found[want] {
			t.Errorf("metric %s not registered", want)
		}
	}
}

func TestNegativeTransferIgnored(t *testing.T) {
	c := NewCollector("test")
	c.RecordTransfer("upload", -5) // must not panic prometheus counters
}
