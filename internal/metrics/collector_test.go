package metrics

import (
	"bufio"
	"os"
	"testing"
)

func TestStartEndOperation_AggregatesCorrectly(t *testing.T) {
	c, err := NewCollector(t.TempDir())
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	defer c.Close()

	op1 := c.StartOperation("read_file", nil)
	c.EndOperation(op1, true, "", false)

	op2 := c.StartOperation("edit_file", nil)
	c.RecordRetry(op2, 2)
	c.EndOperation(op2, false, "String not found", true)

	agg := c.GetAggregatedMetrics()
	if agg.TotalOperations != 2 {
		t.Fatalf("expected 2 operations, got %d", agg.TotalOperations)
	}
	if agg.Successes != 1 || agg.Failures != 1 {
		t.Fatalf("expected 1 success and 1 failure, got %+v", agg)
	}
	if agg.TotalRetries != 2 {
		t.Fatalf("expected 2 total retries, got %d", agg.TotalRetries)
	}
	if agg.FallbacksUsed != 1 {
		t.Fatalf("expected 1 fallback used, got %d", agg.FallbacksUsed)
	}

	bucket, ok := agg.PerTool["edit_file"]
	if !ok || bucket.Failures != 1 {
		t.Fatalf("expected edit_file bucket with 1 failure, got %+v", bucket)
	}
}

func TestEndOperation_UnknownOpIDIsIgnoredNotPanicked(t *testing.T) {
	c, err := NewCollector(t.TempDir())
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	defer c.Close()

	c.EndOperation("never-started", true, "", false)

	agg := c.GetAggregatedMetrics()
	if agg.TotalOperations != 0 {
		t.Fatalf("expected unknown opID to be a no-op, got %+v", agg)
	}
}

func TestCollector_WritesJSONLToDisk(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCollector(dir)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	op := c.StartOperation("exec", nil)
	c.EndOperation(op, true, "", false)
	c.Close()

	f, err := os.Open(c.Path())
	if err != nil {
		t.Fatalf("expected metrics log at %s: %v", c.Path(), err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lines := 0
	for scanner.Scan() {
		lines++
	}
	if lines != 1 {
		t.Fatalf("expected exactly 1 JSONL line, got %d", lines)
	}
}
