package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/3jsLive/tasks/dbopen"
	"github.com/3jsLive/tasks/threeprof/result"
)

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := New(context.Background(), dbopen.OpenMemory(t))
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func summary(id string, start time.Time, digests ...string) result.RunSummary {
	s := result.RunSummary{RunID: id, StartedAt: start, FinishedAt: start.Add(time.Minute)}
	for i, d := range digests {
		a := result.Artifact{
			URL:    "http://localhost/examples/" + string(rune('a'+i)) + ".html",
			Status: result.StatusSuccess,
			File:   string(rune('a'+i)) + ".json",
			Digest: d,
		}
		if d == "" {
			a.Status = result.StatusFailure
			a.Errors = []string{"session: page crashed"}
		}
		s.Artifacts = append(s.Artifacts, a)
		s.Total++
		if a.Status == result.StatusFailure {
			s.Failed++
		}
	}
	return s
}

func TestRecordAndList(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := l.Record(ctx, summary("r1", t0, "d1", "")); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := l.Record(ctx, summary("r2", t0.Add(time.Hour), "d1")); err != nil {
		t.Fatalf("Record: %v", err)
	}

	runs, err := l.Runs(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != "r2" {
		t.Fatalf("runs: got %+v, want r2 first", runs)
	}
	if runs[1].Failed != 1 || runs[1].Total != 2 {
		t.Errorf("r1 counts: got total=%d failed=%d", runs[1].Total, runs[1].Failed)
	}

	arts, err := l.Artifacts(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(arts) != 2 {
		t.Fatalf("artifacts: got %d, want 2", len(arts))
	}
	if arts[1].Status != result.StatusFailure || len(arts[1].Errors) != 1 {
		t.Errorf("failed artifact: got %+v", arts[1])
	}
	if arts[0].Errors != nil {
		t.Errorf("successful artifact errors: got %v, want nil", arts[0].Errors)
	}
}

func TestRecord_DuplicateRun(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	s := summary("r1", time.Now(), "d1")
	if err := l.Record(ctx, s); err != nil {
		t.Fatal(err)
	}
	if err := l.Record(ctx, s); err == nil {
		t.Fatal("want error for duplicate run id")
	}
}

func TestChanged(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := l.Record(ctx, summary("r1", t0, "d1", "d2")); err != nil {
		t.Fatal(err)
	}
	if err := l.Record(ctx, summary("r2", t0.Add(time.Hour), "d1", "d2x", "d3")); err != nil {
		t.Fatal(err)
	}

	got, err := l.Changed(ctx, "r2")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"http://localhost/examples/b.html", "http://localhost/examples/c.html"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d]: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestOpen_File(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "db", "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	if runs, err := l.Runs(context.Background(), 5); err != nil || len(runs) != 0 {
		t.Fatalf("got %v, %v", runs, err)
	}
}
