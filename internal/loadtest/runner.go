// Package loadtest drives a running placement server with a synthetic
// dataset and a burst of async runs, then checks every settled result.
package loadtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/placement/internal/dataset"
	"github.com/okian/placement/internal/domain/types"
	"github.com/okian/placement/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)

// ErrVerification is returned when a settled run breaks an allocation rule.
var ErrVerification = errors.New("verification failed")

// Run executes the complete load test.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	log := logger.Get().Named("loadtest")
	stats := &Stats{StartTime: time.Now(), RunsSettled: map[string]int{}}
	if config.PollInterval <= 0 {
		config.PollInterval = defaultPollInterval
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}

	log.Info(ctx, "starting placement load test",
		logger.String("baseURL", config.BaseURL),
		logger.Int("candidates", config.Candidates),
		logger.Int("opportunities", config.Opportunities),
		logger.Int("runs", config.Runs),
		logger.Int("workers", config.Workers),
		logger.String("strategy", config.Strategy))

	client := NewClient(config.BaseURL, config.Timeout)
	if err := client.Health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	doc := Generate(config.Seed, config.Candidates, config.Opportunities)
	if config.OutputFile != "" {
		if err := saveDataset(config.OutputFile, doc); err != nil {
			log.Warn(ctx, "failed to save dataset", logger.Error(err))
		}
	}
	datasetID, err := client.PutDataset(ctx, doc)
	if err != nil {
		return stats, fmt.Errorf("dataset upload failed: %w", err)
	}
	log.Info(ctx, "dataset uploaded", logger.String("datasetID", datasetID))

	ids := submitRuns(ctx, client, config, stats)
	runs, err := waitRuns(ctx, client, config, ids)
	if err != nil {
		return stats, fmt.Errorf("run polling failed: %w", err)
	}
	for _, run := range runs {
		stats.RunsSettled[string(run.Status)]++
		if config.Verbose {
			log.Info(ctx, "run settled", logger.String("runID", run.ID), logger.String("status", string(run.Status)))
		}
	}

	problems := Verify(doc, runs)
	stats.Violations = len(problems)
	for _, p := range problems {
		log.Error(ctx, "allocation rule broken", logger.String("problem", p))
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	if len(problems) > 0 {
		return stats, fmt.Errorf("%w: %d problems", ErrVerification, len(problems))
	}
	return stats, nil
}

// submitRuns posts config.Runs requests with a worker pool and returns the
// distinct run ids that were accepted.
func submitRuns(ctx context.Context, client *Client, config *Config, stats *Stats) []string {
	var (
		submitted int64
		accepted  int64
		duplicate int64
		rejected  int64
		mu        sync.Mutex
		seen      = map[string]struct{}{}
		ids       []string
	)

	keys := make([]string, config.Runs)
	for i := range keys {
		if i > 0 && i%duplicateEvery == 0 {
			keys[i] = keys[i-1]
			continue
		}
		keys[i] = uuid.NewString()
	}
	req := types.AllocateRequest{Strategy: config.Strategy}

	work := make(chan string, config.Workers*workerChannelFactor)
	var wg sync.WaitGroup
	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for key := range work {
				atomic.AddInt64(&submitted, 1)
				res, err := client.Submit(ctx, req, key)
				switch {
				case err != nil, res.Code != http.StatusAccepted && res.Code != http.StatusOK:
					atomic.AddInt64(&rejected, 1)
					continue
				case res.Duplicate:
					atomic.AddInt64(&duplicate, 1)
				default:
					atomic.AddInt64(&accepted, 1)
				}
				mu.Lock()
				if _, ok := seen[res.RunID]; !ok {
					seen[res.RunID] = struct{}{}
					ids = append(ids, res.RunID)
				}
				mu.Unlock()
			}
		}()
	}

	go func() {
		defer close(work)
		for _, key := range keys {
			select {
			case <-ctx.Done():
				return
			case work <- key:
			}
		}
	}()
	wg.Wait()

	stats.RunsSubmitted = int(atomic.LoadInt64(&submitted))
	stats.RunsAccepted = int(atomic.LoadInt64(&accepted))
	stats.RunsDuplicate = int(atomic.LoadInt64(&duplicate))
	stats.RunsRejected = int(atomic.LoadInt64(&rejected))
	return ids
}

// waitRuns polls every run until it reaches a terminal status.
func waitRuns(ctx context.Context, client *Client, config *Config, ids []string) ([]types.Run, error) {
	out := make([]types.Run, 0, len(ids))
	for _, id := range ids {
		var run types.Run
		for attempt := 0; ; attempt++ {
			r, err := client.Run(ctx, id)
			if err != nil {
				return out, err
			}
			if r.Status.Terminal() {
				run = r
				break
			}
			if attempt >= maxPolls {
				return out, fmt.Errorf("run %s still %s after %d polls", id, r.Status, maxPolls)
			}
			select {
			case <-ctx.Done():
				return out, ctx.Err()
			case <-time.After(config.PollInterval):
			}
		}
		out = append(out, run)
	}
	return out, nil
}

// saveDataset writes the generated document as indented JSON.
func saveDataset(filename string, doc dataset.Document) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal dataset: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	return nil
}

func displayFinalStats(ctx context.Context, stats *Stats) {
	var runsPerSecond float64
	if stats.Duration > 0 {
		runsPerSecond = float64(stats.RunsSubmitted) / stats.Duration.Seconds()
	}
	fields := []logger.Field{
		logger.Int("runsSubmitted", stats.RunsSubmitted),
		logger.Int("runsAccepted", stats.RunsAccepted),
		logger.Int("runsDuplicate", stats.RunsDuplicate),
		logger.Int("runsRejected", stats.RunsRejected),
		logger.Int("violations", stats.Violations),
		logger.Duration("duration", stats.Duration),
		logger.Float64("runsPerSecond", runsPerSecond),
	}
	for status, n := range stats.RunsSettled {
		fields = append(fields, logger.Int("settled."+status, n))
	}
	logger.Get().Named("loadtest").Info(ctx, "final statistics", fields...)
}
