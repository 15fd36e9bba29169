package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewIsolatedRegistries(t *testing.T) {
	first := New("matcher")
	second := New("matcher")

	first.TasksSubmitted.Inc()
	first.TasksFinished.WithLabelValues(StatusFailed).Inc()

	if got := testutil.ToFloat64(first.TasksSubmitted); got != 1 {
		t.Fatalf("expected 1 submitted task, got %v", got)
	}
	if got := testutil.ToFloat64(second.TasksSubmitted); got != 0 {
		t.Fatalf("expected second instance to be untouched, got %v", got)
	}
	if got := testutil.ToFloat64(first.TasksFinished.WithLabelValues(StatusFailed)); got != 1 {
		t.Fatalf("expected 1 failed task, got %v", got)
	}
}

func TestWriteToFile(t *testing.T) {
	m := New("matcher")
	m.MatchesFound.Add(3)

	path := filepath.Join(t.TempDir(), "metrics.prom")
	if err := m.WriteToFile(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read metrics file: %v", err)
	}
	if !strings.Contains(string(data), "matcher_matcher_matches_found_total 3") {
		t.Fatalf("expected matches counter in output, got:\n%s", data)
	}
}
