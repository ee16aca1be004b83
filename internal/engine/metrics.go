package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// slowOperation is the threshold above which TrackOperation logs a warning.
const slowOperation = 2 * time.Second

// Metrics tracks operational counters across the library.
var metrics struct {
	VideosCreated        atomic.Int64
	VideosDeleted        atomic.Int64
	ListsCreated         atomic.Int64
	ListsDeleted         atomic.Int64
	BatchCommits         atomic.Int64
	ListLinks            atomic.Int64
	ListUnlinks          atomic.Int64
	Compensations        atomic.Int64
	CompensationFailures atomic.Int64
	StoreErrors          atomic.Int64
	DriftReports         atomic.Int64
}

var metricKeys = []string{
	"videos_created", "videos_deleted",
	"lists_created", "lists_deleted",
	"batch_commits", "list_links", "list_unlinks",
	"compensations", "compensation_failures",
	"store_errors", "drift_reports",
}

// GetMetrics returns a snapshot of all metrics.
func GetMetrics() map[string]int64 {
	return map[string]int64{
		"videos_created":        metrics.VideosCreated.Load(),
		"videos_deleted":        metrics.VideosDeleted.Load(),
		"lists_created":         metrics.ListsCreated.Load(),
		"lists_deleted":         metrics.ListsDeleted.Load(),
		"batch_commits":         metrics.BatchCommits.Load(),
		"list_links":            metrics.ListLinks.Load(),
		"list_unlinks":          metrics.ListUnlinks.Load(),
		"compensations":         metrics.Compensations.Load(),
		"compensation_failures": metrics.CompensationFailures.Load(),
		"store_errors":          metrics.StoreErrors.Load(),
		"drift_reports":         metrics.DriftReports.Load(),
	}
}

// FormatMetrics returns metrics as a simple text format for HTTP endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	var sb strings.Builder
	for _, k := range metricKeys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

// Incrementors for the library package.
func IncrVideosCreated()        { metrics.VideosCreated.Add(1) }
func IncrVideosDeleted()        { metrics.VideosDeleted.Add(1) }
func IncrListsCreated()         { metrics.ListsCreated.Add(1) }
func IncrListsDeleted()         { metrics.ListsDeleted.Add(1) }
func IncrBatchCommits()         { metrics.BatchCommits.Add(1) }
func IncrListLinks()            { metrics.ListLinks.Add(1) }
func IncrListUnlinks()          { metrics.ListUnlinks.Add(1) }
func IncrCompensations()        { metrics.Compensations.Add(1) }
func IncrCompensationFailures() { metrics.CompensationFailures.Add(1) }
func IncrStoreErrors()          { metrics.StoreErrors.Add(1) }
func IncrDriftReports()         { metrics.DriftReports.Add(1) }

// TrackOperation logs a warning if an operation takes longer than threshold
// and counts failed operations.
func TrackOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if elapsed > slowOperation {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	if err != nil {
		IncrStoreErrors()
		slog.Debug("operation failed", slog.String("op", name), slog.Any("error", err))
	}
	return err
}
