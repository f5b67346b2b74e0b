// cmd/historian/main_test.go
package main

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rummyhouse/rummy/internal/cache"
)

type captureSink struct {
	mu      sync.Mutex
	batches [][]cache.MatchActionRecord
}

func (cs *captureSink) persist(batch []cache.MatchActionRecord) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.batches = append(cs.batches, batch)
}

func newCaptureService(batchSize int) (*HistorianService, *captureSink) {
	sink := &captureSink{}
	hs := &HistorianService{
		batchSize: batchSize,
		batch:     make([]cache.MatchActionRecord, 0, batchSize),
		persist:   sink.persist,
	}
	return hs, sink
}

func TestAppendToBatchFlushesAtThreshold(t *testing.T) {
	hs, sink := newCaptureService(2)

	// Reaching the threshold must flush and return, not wedge on batchMu.
	done := make(chan struct{})
	go func() {
		hs.appendToBatch(cache.MatchActionRecord{ActionIndex: 1})
		hs.appendToBatch(cache.MatchActionRecord{ActionIndex: 2})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("appendToBatch did not return after filling the batch")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.batches, 1)
	require.Len(t, sink.batches[0], 2)
	assert.Equal(t, 1, sink.batches[0][0].ActionIndex)
	assert.Equal(t, 2, sink.batches[0][1].ActionIndex)
	assert.Empty(t, hs.batch, "a flushed buffer starts over empty")
}

func TestTickerFlushDrainsPartialBatch(t *testing.T) {
	hs, sink := newCaptureService(10)

	hs.appendToBatch(cache.MatchActionRecord{ActionIndex: 1})
	hs.flushBatchToDB()
	hs.flushBatchToDB() // nothing left, must not emit an empty batch

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.batches, 1)
	assert.Len(t, sink.batches[0], 1)
}
