package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/guestlens/guestlens/internal/event"
	"github.com/guestlens/guestlens/internal/match"
	"github.com/guestlens/guestlens/internal/report"
)

func TestReportGet(t *testing.T) {
	layout := &event.Layout{Root: t.TempDir()}

	rep := report.New(layout.Root, report.Config{Provider: "dlib", Profile: "balanced"})
	rep.SetStats(match.Stats{PhotosScanned: 10, Delivered: 4}, 5*time.Second)
	if err := report.Write(rep, layout.ReportPath()); err != nil {
		t.Fatal(err)
	}

	h := NewReportHandler(layout)
	req := httptest.NewRequest("GET", "/api/v1/report", nil)
	recorder := httptest.NewRecorder()
	h.Get(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}

	var result report.Report
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if result.Stats.PhotosScanned != 10 || result.Stats.Delivered != 4 {
		t.Errorf("unexpected stats: %+v", result.Stats)
	}
	if result.Config.Provider != "dlib" {
		t.Errorf("expected provider 'dlib', got '%s'", result.Config.Provider)
	}
}

func TestReportGetMissing(t *testing.T) {
	h := NewReportHandler(&event.Layout{Root: t.TempDir()})

	req := httptest.NewRequest("GET", "/api/v1/report", nil)
	recorder := httptest.NewRecorder()
	h.Get(recorder, req)

	if recorder.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, recorder.Code)
	}
}

func TestReviewGet(t *testing.T) {
	layout := &event.Layout{Root: t.TempDir()}
	content := []byte(`{"provider":"gpt-4.1-mini","reviewed":3,"confirmed":1}`)
	if err := os.WriteFile(layout.ReviewPath(), content, 0o644); err != nil {
		t.Fatal(err)
	}

	h := NewReportHandler(layout)
	req := httptest.NewRequest("GET", "/api/v1/review", nil)
	recorder := httptest.NewRecorder()
	h.Review(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}
	if recorder.Body.String() != string(content) {
		t.Errorf("unexpected body: %s", recorder.Body.String())
	}
}

func TestReviewGetMissing(t *testing.T) {
	h := NewReportHandler(&event.Layout{Root: t.TempDir()})

	req := httptest.NewRequest("GET", "/api/v1/review", nil)
	recorder := httptest.NewRecorder()
	h.Review(recorder, req)

	if recorder.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, recorder.Code)
	}
}
