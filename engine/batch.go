package engine

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"localsearch-forecast/metrics"
)

// BatchResult summarizes a batch recomputation
type BatchResult struct {
	Requested int               `json:"requested"`
	Completed int               `json:"completed"`
	Failed    map[string]string `json:"failed"`
	Skipped   int               `json:"skipped"`
	Cancelled bool              `json:"cancelled"`
	Duration  time.Duration     `json:"duration"`
}

// RunBatch predicts every key with at most Config.Concurrency keys in flight.
// Failures are recorded per key and do not stop the batch. Cancelling ctx stops the batch
// between keys; keys already started run to completion.
func (e *Engine) RunBatch(ctx context.Context, keys []Key) BatchResult {
	start := time.Now()
	keys = uniqueKeys(keys)
	result := BatchResult{Requested: len(keys), Failed: make(map[string]string)}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)

	for _, key := range keys {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			_, err := e.Predict(context.WithoutCancel(ctx), key.LocationKey, key.Keyword)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed[key.String()] = err.Error()
				metrics.RecordBatchKey("failed")
				return nil
			}
			result.Completed++
			metrics.RecordBatchKey("completed")
			return nil
		})
	}
	_ = g.Wait()

	result.Cancelled = ctx.Err() != nil
	result.Skipped = result.Requested - result.Completed - len(result.Failed)
	result.Duration = time.Since(start)

	entry := e.logger.WithFields(logrus.Fields{
		"requested": result.Requested,
		"completed": result.Completed,
		"failed":    len(result.Failed),
		"skipped":   result.Skipped,
		"duration":  result.Duration.Round(time.Millisecond),
	})
	if result.Cancelled {
		entry.Warn("⚠️  Batch cancelled")
	} else {
		entry.Info("✅ Batch completed")
	}
	return result
}

func uniqueKeys(keys []Key) []Key {
	seen := make(map[Key]bool, len(keys))
	out := make([]Key, 0, len(keys))
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
