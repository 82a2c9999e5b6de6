package winmax4

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func waitForSummary(t *testing.T, ch <-chan BatchSummary) BatchSummary {
	t.Helper()
	select {
	case summary := <-ch:
		return summary
	case <-time.After(5 * time.Second):
		t.Fatal("batch finalizer did not fire")
		return BatchSummary{}
	}
}

func TestBatch_FinalizerFiresExactlyOnce(t *testing.T) {
	runner := NewRunner(4)

	var finalizerCalls atomic.Int32
	summaryCh := make(chan BatchSummary, 2)
	batch, err := runner.CreateBatch(context.Background(), "lic", "test-batch", func(s BatchSummary) {
		finalizerCalls.Add(1)
		summaryCh <- s
	})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	var executed atomic.Int32
	var tasks []Task
	for i := 0; i < 250; i++ {
		tasks = append(tasks, newRecordTask("widgets", "w", func(ctx context.Context) error {
			executed.Add(1)
			return nil
		}))
	}
	for _, chunk := range chunked(tasks) {
		batch.Add(chunk...)
	}
	batch.Close()
	batch.Close()

	summary := waitForSummary(t, summaryCh)
	if summary.Total != 250 || summary.Failed != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if got := executed.Load(); got != 250 {
		t.Errorf("executed = %d, want 250", got)
	}

	time.Sleep(100 * time.Millisecond)
	if got := finalizerCalls.Load(); got != 1 {
		t.Errorf("finalizer fired %d times, want 1", got)
	}
}

func TestBatch_FailuresDoNotBlockSiblings(t *testing.T) {
	runner := NewRunner(4)

	summaryCh := make(chan BatchSummary, 1)
	batch, err := runner.CreateBatch(context.Background(), "lic", "test-batch", func(s BatchSummary) {
		summaryCh <- s
	})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	var executed atomic.Int32
	var tasks []Task
	for i := 0; i < 40; i++ {
		i := i
		tasks = append(tasks, newRecordTask("widgets", "w", func(ctx context.Context) error {
			executed.Add(1)
			if i%4 == 0 {
				return errors.New("boom")
			}
			return nil
		}))
	}
	batch.Add(tasks...)
	batch.Close()

	summary := waitForSummary(t, summaryCh)
	if summary.Total != 40 {
		t.Errorf("Total = %d, want 40", summary.Total)
	}
	if summary.Failed != 10 {
		t.Errorf("Failed = %d, want 10", summary.Failed)
	}
	if len(summary.Failures) != 10 {
		t.Errorf("len(Failures) = %d, want 10", len(summary.Failures))
	}
	if got := executed.Load(); got != 40 {
		t.Errorf("executed = %d, want 40: a failing task must not cancel siblings", got)
	}
}

func TestBatch_EmptyBatchStillFinalizes(t *testing.T) {
	runner := NewRunner(2)

	summaryCh := make(chan BatchSummary, 1)
	batch, err := runner.CreateBatch(context.Background(), "lic", "empty-batch", func(s BatchSummary) {
		summaryCh <- s
	})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	batch.Close()

	summary := waitForSummary(t, summaryCh)
	if summary.Total != 0 || summary.Failed != 0 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestChunked_PreservesSizeAndOrder(t *testing.T) {
	var tasks []Task
	for i := 0; i < 250; i++ {
		tasks = append(tasks, newRecordTask("widgets", "w", nil))
	}
	chunks := chunked(tasks)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if len(chunks[0]) != 100 || len(chunks[1]) != 100 || len(chunks[2]) != 50 {
		t.Errorf("chunk sizes = %d/%d/%d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
	if chunks[0][0] != tasks[0] || chunks[2][49] != tasks[249] {
		t.Error("chunking reordered tasks")
	}

	if chunked(nil) != nil {
		t.Error("chunked(nil) should be nil")
	}
}
