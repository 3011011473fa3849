package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/guestlens/guestlens/internal/match"
)

func TestWriteAndLoadRoundTrip(t *testing.T) {
	r := New("/events/wedding", Config{
		Provider:  "dlib",
		Model:     "dlib-resnet-v1",
		Profile:   "balanced",
		Metric:    "euclidean",
		Tolerance: 0.45,
		Margin:    0.10,
		Passes:    2,
		Recheck:   "auto",
		Workers:   4,
	})
	r.SetStats(match.Stats{PhotosScanned: 100, FacesSeen: 240, Accepted: 80, Delivered: 75}, 50*time.Second)
	r.SetGuests(map[string]*match.GuestCounts{
		"anna": {Matched: 40, Candidates: 2},
		"bert": {Matched: 35},
	}, map[string]string{"anna": "Anna Svobodová"})

	path := filepath.Join(t.TempDir(), "processing_report.json")
	if err := Write(r, path); err != nil {
		t.Fatalf("Write: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.RunID != r.RunID {
		t.Errorf("run id = %s, want %s", loaded.RunID, r.RunID)
	}
	if loaded.Stats.Delivered != 75 {
		t.Errorf("delivered = %d, want 75", loaded.Stats.Delivered)
	}
	if loaded.PhotosPerSecond != 2.0 {
		t.Errorf("photos/s = %f, want 2.0", loaded.PhotosPerSecond)
	}
	if len(loaded.Guests) != 2 || loaded.Guests[0].Key != "anna" {
		t.Errorf("guests = %+v, want sorted [anna bert]", loaded.Guests)
	}
	if loaded.Guests[0].DisplayName != "Anna Svobodová" {
		t.Errorf("display name = %s", loaded.Guests[0].DisplayName)
	}
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	if err := Write(New("/events/x", Config{}), filepath.Join(dir, "r.json")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "r.json" {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("directory holds %v, want only r.json", names)
	}
}

func TestSummaryWarnsOnZeroMatches(t *testing.T) {
	r := New("/events/x", Config{})
	r.SetStats(match.Stats{PhotosScanned: 10, FacesSeen: 5}, time.Second)

	out := r.Summary()
	if !strings.Contains(out, "no photos were matched") {
		t.Errorf("summary missing zero-match warning:\n%s", out)
	}
}

func TestSummaryMentionsInterrupt(t *testing.T) {
	r := New("/events/x", Config{})
	r.Interrupted = true
	r.SetStats(match.Stats{Delivered: 3}, time.Second)

	if out := r.Summary(); !strings.Contains(out, "interrupted") {
		t.Errorf("summary missing interrupt note:\n%s", out)
	}
}
