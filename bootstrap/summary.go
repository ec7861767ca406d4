package bootstrap

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kbukum/rowflow/component"
	"github.com/kbukum/rowflow/engine"
)

// RunInfo is the outcome of one process run as shown in the summary.
type RunInfo struct {
	Process  string
	Status   string
	Input    int64
	Finished int64
	Removed  int64
	Errors   int
	Duration time.Duration
	Counters map[string]map[string]int64
}

// Summary collects what a job did and renders it once the task finished.
type Summary struct {
	serviceName     string
	version         string
	startupDuration time.Duration
	taskDuration    time.Duration

	mu   sync.Mutex
	runs []RunInfo
}

// NewSummary creates a new summary tracker.
func NewSummary(serviceName, version string) *Summary {
	return &Summary{serviceName: serviceName, version: version}
}

// SetStartupDuration records the time spent before the task started.
func (s *Summary) SetStartupDuration(d time.Duration) { s.startupDuration = d }

// SetTaskDuration records the time spent in the task.
func (s *Summary) SetTaskDuration(d time.Duration) { s.taskDuration = d }

// TrackRun records the result of a process run. A nil result is ignored.
func (s *Summary) TrackRun(process string, res *engine.Result) {
	if res == nil {
		return
	}
	status := "success"
	switch {
	case !res.Success:
		status = "failed"
	case res.Cancelled:
		status = "cancelled"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, RunInfo{
		Process:  process,
		Status:   status,
		Input:    res.Input,
		Finished: res.Finished,
		Removed:  res.Removed,
		Errors:   len(res.Errors),
		Duration: res.Duration,
		Counters: res.Counters,
	})
}

// Runs returns the tracked runs.
func (s *Summary) Runs() []RunInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.runs)
}

// Write renders the summary to w, with live health from registry when set.
func (s *Summary) Write(w io.Writer, registry *component.Registry) {
	fmt.Fprintf(w, "\n%s v%s (startup %.2fs, task %.2fs)\n",
		s.serviceName, s.version, s.startupDuration.Seconds(), s.taskDuration.Seconds())

	if registry != nil {
		descs := registry.Describe()
		health := registry.HealthAll(context.Background())
		if len(descs) > 0 {
			fmt.Fprintf(w, "\nComponents\n")
			for i, d := range descs {
				fmt.Fprintf(w, "   %s %s [%s]: %s\n", treePrefix(i, len(descs)), d.Name, d.Type, d.Details)
			}
		}
		if len(health) > 0 {
			fmt.Fprintf(w, "\nHealth\n")
			for i, h := range health {
				msg := ""
				if h.Message != "" {
					msg = " (" + h.Message + ")"
				}
				fmt.Fprintf(w, "   %s %s %s: %s%s\n", treePrefix(i, len(health)), healthStatusIcon(h.Status), h.Name, strings.ToLower(string(h.Status)), msg)
			}
		}
	}

	runs := s.Runs()
	if len(runs) == 0 {
		fmt.Fprintf(w, "\n   └── No runs recorded\n\n")
		return
	}
	for _, r := range runs {
		fmt.Fprintf(w, "\nRun %s: %s %s in %s\n", r.Process, statusIcon(r.Status), r.Status, r.Duration.Round(time.Millisecond))
		fmt.Fprintf(w, "   ├── input=%d finished=%d removed=%d errors=%d\n", r.Input, r.Finished, r.Removed, r.Errors)
		ops := slices.Sorted(maps.Keys(r.Counters))
		for i, op := range ops {
			counters := r.Counters[op]
			names := slices.Sorted(maps.Keys(counters))
			parts := make([]string, len(names))
			for j, n := range names {
				parts[j] = fmt.Sprintf("%s=%d", n, counters[n])
			}
			fmt.Fprintf(w, "   %s %s: %s\n", treePrefix(i, len(ops)), op, strings.Join(parts, " "))
		}
	}
	fmt.Fprintln(w)
}

func treePrefix(i, n int) string {
	if i == n-1 {
		return "└──"
	}
	return "├──"
}

func statusIcon(status string) string {
	switch status {
	case "success":
		return "✅"
	case "cancelled":
		return "⏸️"
	default:
		return "❌"
	}
}

func healthStatusIcon(status component.HealthStatus) string {
	switch status {
	case component.StatusHealthy:
		return "✅"
	case component.StatusDegraded:
		return "⚠️"
	case component.StatusUnhealthy:
		return "❌"
	default:
		return "❓"
	}
}
