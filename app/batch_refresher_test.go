package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localsearch-forecast/engine"
)

func TestRefreshSeedsAndTrackedKeys(t *testing.T) {
	a := buildApp(t, "memory")
	refresher := NewBatchRefresher(a.Engine(), a.seedKeys, time.Hour, a.logger)

	result := refresher.Refresh(context.Background())
	assert.Equal(t, 2, result.Requested)
	assert.Equal(t, 2, result.Completed)

	keys, err := a.Engine().TrackedKeys(context.Background())
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	// tracked keys and seeds overlap and are only predicted once
	result = refresher.Refresh(context.Background())
	assert.Equal(t, 2, result.Requested)
}

func TestRefreshWithoutKeys(t *testing.T) {
	a := buildApp(t, "memory")
	refresher := NewBatchRefresher(a.Engine(), nil, time.Hour, nil)

	result := refresher.Refresh(context.Background())
	assert.Zero(t, result.Requested)
	assert.Empty(t, result.Failed)
}

func TestRefreshRecordsFailures(t *testing.T) {
	a := buildApp(t, "memory")
	seed := func() []engine.Key {
		return []engine.Key{{LocationKey: "downtown", Keyword: "coffee shop"}, {LocationKey: "uptown", Keyword: "bakery"}}
	}
	refresher := NewBatchRefresher(a.Engine(), seed, time.Hour, nil)

	result := refresher.Refresh(context.Background())
	assert.Equal(t, 1, result.Completed)
	assert.Contains(t, result.Failed, "uptown|bakery")
}

func TestRefresherStops(t *testing.T) {
	a := buildApp(t, "memory")
	refresher := NewBatchRefresher(a.Engine(), a.seedKeys, time.Hour, nil)

	done := make(chan struct{})
	go func() {
		refresher.Start(context.Background())
		close(done)
	}()

	refresher.Stop()
	refresher.Stop()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("refresher did not stop")
	}
}
