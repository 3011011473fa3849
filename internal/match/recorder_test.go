package match

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/guestlens/guestlens/internal/event"
)

func writePhoto(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDeliverCopiesIntoGuestFolder(t *testing.T) {
	root := t.TempDir()
	layout := &event.Layout{Root: root}
	photo := writePhoto(t, filepath.Join(root, "photos"), "p.jpg", "jpeg-bytes")

	rec := NewRecorder(layout, false)
	res, err := rec.Deliver("anna", photo)
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if res != Delivered {
		t.Fatalf("result = %s, want delivered", res)
	}

	copied, err := os.ReadFile(filepath.Join(layout.MatchedGuestDir("anna"), "p.jpg"))
	if err != nil {
		t.Fatalf("read delivered copy: %v", err)
	}
	if string(copied) != "jpeg-bytes" {
		t.Errorf("copy content = %q", copied)
	}
}

func TestDeliverDeduplicatesPerGuest(t *testing.T) {
	root := t.TempDir()
	layout := &event.Layout{Root: root}
	photo := writePhoto(t, filepath.Join(root, "photos"), "p.jpg", "jpeg-bytes")

	rec := NewRecorder(layout, false)
	if res, _ := rec.Deliver("anna", photo); res != Delivered {
		t.Fatalf("first delivery = %s", res)
	}
	if res, _ := rec.Deliver("anna", photo); res != SkippedDuplicate {
		t.Errorf("second delivery = %s, want skipped-duplicate", res)
	}
	// The same photo still delivers to a different guest.
	if res, _ := rec.Deliver("bert", photo); res != Delivered {
		t.Errorf("other guest delivery = %s, want delivered", res)
	}

	counts := rec.PerGuest()
	if counts["anna"].Matched != 1 || counts["anna"].Skipped != 1 {
		t.Errorf("anna counts = %+v, want 1 matched / 1 skipped", counts["anna"])
	}
}

func TestDeliverResumeSkipsIdenticalExisting(t *testing.T) {
	// A re-run over a tree that already holds the copy must not duplicate it.
	root := t.TempDir()
	layout := &event.Layout{Root: root}
	photo := writePhoto(t, filepath.Join(root, "photos"), "p.jpg", "jpeg-bytes")
	writePhoto(t, layout.MatchedGuestDir("anna"), "p.jpg", "jpeg-bytes")

	rec := NewRecorder(layout, false)
	res, err := rec.Deliver("anna", photo)
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if res != SkippedExists {
		t.Errorf("result = %s, want skipped-exists", res)
	}
}

func TestDeliverNameCollisionGetsSuffix(t *testing.T) {
	// A distinct photo that happens to share its basename with an existing
	// copy lands under a numbered name instead of overwriting.
	root := t.TempDir()
	layout := &event.Layout{Root: root}
	photo := writePhoto(t, filepath.Join(root, "photos"), "p.jpg", "new-content")
	writePhoto(t, layout.MatchedGuestDir("anna"), "p.jpg", "old-content")

	rec := NewRecorder(layout, false)
	res, err := rec.Deliver("anna", photo)
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if res != Delivered {
		t.Fatalf("result = %s, want delivered", res)
	}

	suffixed, err := os.ReadFile(filepath.Join(layout.MatchedGuestDir("anna"), "p_1.jpg"))
	if err != nil {
		t.Fatalf("read suffixed copy: %v", err)
	}
	if string(suffixed) != "new-content" {
		t.Errorf("suffixed content = %q", suffixed)
	}
	original, err := os.ReadFile(filepath.Join(layout.MatchedGuestDir("anna"), "p.jpg"))
	if err != nil || string(original) != "old-content" {
		t.Errorf("existing copy disturbed: %q, %v", original, err)
	}
}

func TestDryRunWritesNothing(t *testing.T) {
	root := t.TempDir()
	layout := &event.Layout{Root: root}
	photo := writePhoto(t, filepath.Join(root, "photos"), "p.jpg", "jpeg-bytes")

	rec := NewRecorder(layout, true)
	if res, _ := rec.Deliver("anna", photo); res != DryRun {
		t.Fatalf("result = %s, want dry-run", res)
	}
	// Dedup still applies so the stats mirror a real run.
	if res, _ := rec.Deliver("anna", photo); res != SkippedDuplicate {
		t.Errorf("repeat result = %s, want skipped-duplicate", res)
	}

	if _, err := os.Stat(layout.MatchedDir()); !os.IsNotExist(err) {
		t.Errorf("matched directory created in dry-run: %v", err)
	}
	if rec.PerGuest()["anna"].Matched != 1 {
		t.Errorf("counts = %+v, want 1 matched", rec.PerGuest()["anna"])
	}
}

func TestCandidateSetIndependentOfMatched(t *testing.T) {
	// A photo delivered to one guest can still be kept for review for the
	// same guest: the two dedup sets do not interact.
	root := t.TempDir()
	layout := &event.Layout{Root: root}
	photo := writePhoto(t, filepath.Join(root, "photos"), "p.jpg", "jpeg-bytes")

	rec := NewRecorder(layout, false)
	if res, _ := rec.Deliver("anna", photo); res != Delivered {
		t.Fatal("delivery failed")
	}
	res, err := rec.SaveCandidate("anna", photo)
	if err != nil {
		t.Fatalf("SaveCandidate: %v", err)
	}
	if res != Delivered {
		t.Errorf("candidate result = %s, want delivered", res)
	}
	if _, err := os.Stat(filepath.Join(layout.CandidatesGuestDir("anna"), "p.jpg")); err != nil {
		t.Errorf("candidate copy missing: %v", err)
	}

	counts := rec.PerGuest()
	if counts["anna"].Matched != 1 || counts["anna"].Candidates != 1 {
		t.Errorf("counts = %+v, want 1 matched / 1 candidate", counts["anna"])
	}
}
