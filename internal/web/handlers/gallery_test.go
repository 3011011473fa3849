package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/guestlens/guestlens/internal/event"
)

// jpegBytes is a minimal payload carrying the JPEG magic number.
var jpegBytes = append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte("test-photo-data")...)

func galleryRouter(layout *event.Layout) *chi.Mux {
	h := NewGalleryHandler(layout)
	r := chi.NewRouter()
	r.Get("/api/v1/guests", h.List)
	r.Get("/api/v1/guests/{guest}/photos", h.Photos)
	r.Get("/photos/{kind}/{guest}/{file}", h.Image)
	return r
}

func galleryTree(t *testing.T) *event.Layout {
	t.Helper()
	layout := &event.Layout{Root: t.TempDir()}
	for _, p := range []string{
		filepath.Join(layout.MatchedGuestDir("anna"), "p1.jpg"),
		filepath.Join(layout.MatchedGuestDir("anna"), "p2.jpg"),
		filepath.Join(layout.CandidatesGuestDir("anna"), "maybe.jpg"),
		filepath.Join(layout.CandidatesGuestDir("bert"), "group.jpg"),
	} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, jpegBytes, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return layout
}

func TestGuestList(t *testing.T) {
	router := galleryRouter(galleryTree(t))

	req := httptest.NewRequest("GET", "/api/v1/guests", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}

	var result struct {
		Guests []GuestGallery `json:"guests"`
		Total  int            `json:"total"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if result.Total != 2 {
		t.Fatalf("expected 2 guests, got %d", result.Total)
	}
	if result.Guests[0].Key != "anna" || result.Guests[0].Matched != 2 || result.Guests[0].Candidates != 1 {
		t.Errorf("unexpected anna gallery: %+v", result.Guests[0])
	}
	if result.Guests[1].Key != "bert" || result.Guests[1].Matched != 0 || result.Guests[1].Candidates != 1 {
		t.Errorf("unexpected bert gallery: %+v", result.Guests[1])
	}
}

func TestGuestListEmptyEvent(t *testing.T) {
	router := galleryRouter(&event.Layout{Root: t.TempDir()})

	req := httptest.NewRequest("GET", "/api/v1/guests", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}

	var result struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if result.Total != 0 {
		t.Errorf("expected 0 guests, got %d", result.Total)
	}
}

func TestGuestPhotos(t *testing.T) {
	router := galleryRouter(galleryTree(t))

	req := httptest.NewRequest("GET", "/api/v1/guests/anna/photos", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}

	var result struct {
		Guest  string       `json:"guest"`
		Kind   string       `json:"kind"`
		Photos []PhotoEntry `json:"photos"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if result.Kind != "matched" {
		t.Errorf("expected default kind 'matched', got '%s'", result.Kind)
	}
	if len(result.Photos) != 2 {
		t.Fatalf("expected 2 photos, got %d", len(result.Photos))
	}
	if result.Photos[0].Name != "p1.jpg" || result.Photos[0].URL != "/photos/matched/anna/p1.jpg" {
		t.Errorf("unexpected first photo: %+v", result.Photos[0])
	}
}

func TestGuestPhotosCandidatesKind(t *testing.T) {
	router := galleryRouter(galleryTree(t))

	req := httptest.NewRequest("GET", "/api/v1/guests/anna/photos?kind=candidates", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	var result struct {
		Photos []PhotoEntry `json:"photos"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if len(result.Photos) != 1 || result.Photos[0].Name != "maybe.jpg" {
		t.Errorf("unexpected candidate photos: %+v", result.Photos)
	}
}

func TestGuestPhotosUnknownKind(t *testing.T) {
	router := galleryRouter(galleryTree(t))

	req := httptest.NewRequest("GET", "/api/v1/guests/anna/photos?kind=originals", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, recorder.Code)
	}
}

func TestGuestPhotosUnknownGuestIsEmpty(t *testing.T) {
	router := galleryRouter(galleryTree(t))

	req := httptest.NewRequest("GET", "/api/v1/guests/nobody/photos", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}

	var result struct {
		Photos []PhotoEntry `json:"photos"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if len(result.Photos) != 0 {
		t.Errorf("expected no photos, got %d", len(result.Photos))
	}
}

func TestImageServesJPEG(t *testing.T) {
	router := galleryRouter(galleryTree(t))

	req := httptest.NewRequest("GET", "/photos/matched/anna/p1.jpg", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}
	if contentType := recorder.Header().Get("Content-Type"); contentType != "image/jpeg" {
		t.Errorf("expected Content-Type 'image/jpeg', got '%s'", contentType)
	}
	if recorder.Body.Len() != len(jpegBytes) {
		t.Errorf("expected %d bytes, got %d", len(jpegBytes), recorder.Body.Len())
	}
}

func TestImageNotFound(t *testing.T) {
	router := galleryRouter(galleryTree(t))

	req := httptest.NewRequest("GET", "/photos/matched/anna/missing.jpg", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, recorder.Code)
	}
}

func TestImageRejectsNonImageFile(t *testing.T) {
	layout := galleryTree(t)
	secret := filepath.Join(layout.MatchedGuestDir("anna"), "notes.txt")
	if err := os.WriteFile(secret, []byte("private"), 0o644); err != nil {
		t.Fatal(err)
	}
	router := galleryRouter(layout)

	req := httptest.NewRequest("GET", "/photos/matched/anna/notes.txt", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, recorder.Code)
	}
}

func TestImageRejectsUnknownKind(t *testing.T) {
	router := galleryRouter(galleryTree(t))

	req := httptest.NewRequest("GET", "/photos/selfies/anna/p1.jpg", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, recorder.Code)
	}
}
