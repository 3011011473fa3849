package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/guestlens/guestlens/internal/event"
	"github.com/guestlens/guestlens/internal/imaging"
)

// GalleryHandler serves guest galleries from the matched and candidates
// directories of a processed event.
type GalleryHandler struct {
	layout *event.Layout
}

func NewGalleryHandler(layout *event.Layout) *GalleryHandler {
	return &GalleryHandler{layout: layout}
}

// GuestGallery summarizes one guest's delivery folders.
type GuestGallery struct {
	Key        string `json:"key"`
	Matched    int    `json:"matched"`
	Candidates int    `json:"candidates"`
}

// PhotoEntry is one downloadable photo in a guest gallery.
type PhotoEntry struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// List returns every guest that has matched or candidate photos.
func (h *GalleryHandler) List(w http.ResponseWriter, r *http.Request) {
	guests := make(map[string]*GuestGallery)

	for _, dir := range []struct {
		path      string
		candidate bool
	}{
		{h.layout.MatchedDir(), false},
		{h.layout.CandidatesDir(), true},
	} {
		entries, err := os.ReadDir(dir.path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			log.WithError(err).WithField("dir", dir.path).Error("failed to read gallery directory")
			respondError(w, http.StatusInternalServerError, "failed to read gallery directory")
			return
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			g, ok := guests[e.Name()]
			if !ok {
				g = &GuestGallery{Key: e.Name()}
				guests[e.Name()] = g
			}
			count := countImages(filepath.Join(dir.path, e.Name()))
			if dir.candidate {
				g.Candidates = count
			} else {
				g.Matched = count
			}
		}
	}

	out := make([]GuestGallery, 0, len(guests))
	for _, g := range guests {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })

	respondJSON(w, http.StatusOK, map[string]any{
		"guests": out,
		"total":  len(out),
	})
}

// Photos lists the photos delivered for one guest. The kind query parameter
// selects "matched" (default) or "candidates".
func (h *GalleryHandler) Photos(w http.ResponseWriter, r *http.Request) {
	guest := chi.URLParam(r, "guest")
	if !safeSegment(guest) {
		respondError(w, http.StatusBadRequest, "invalid guest key")
		return
	}

	kind := r.URL.Query().Get("kind")
	if kind == "" {
		kind = "matched"
	}
	dir, err := h.guestDir(kind, guest)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			respondJSON(w, http.StatusOK, map[string]any{"guest": guest, "kind": kind, "photos": []PhotoEntry{}})
			return
		}
		log.WithError(err).WithField("guest", guest).Error("failed to read guest gallery")
		respondError(w, http.StatusInternalServerError, "failed to read guest gallery")
		return
	}

	photos := make([]PhotoEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !event.IsImageFile(e.Name()) {
			continue
		}
		photos = append(photos, PhotoEntry{
			Name: e.Name(),
			URL:  fmt.Sprintf("/photos/%s/%s/%s", kind, guest, e.Name()),
		})
	}
	sort.Slice(photos, func(i, j int) bool { return photos[i].Name < photos[j].Name })

	respondJSON(w, http.StatusOK, map[string]any{
		"guest":  guest,
		"kind":   kind,
		"photos": photos,
	})
}

// Image serves one photo file from a guest gallery.
func (h *GalleryHandler) Image(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	guest := chi.URLParam(r, "guest")
	file := chi.URLParam(r, "file")

	if !safeSegment(guest) || !safeSegment(file) || !event.IsImageFile(file) {
		respondError(w, http.StatusBadRequest, "invalid photo path")
		return
	}
	dir, err := h.guestDir(kind, guest)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := os.ReadFile(filepath.Join(dir, file))
	if err != nil {
		if os.IsNotExist(err) {
			respondError(w, http.StatusNotFound, "photo not found")
			return
		}
		log.WithError(err).WithField("file", file).Error("failed to read photo")
		respondError(w, http.StatusInternalServerError, "failed to read photo")
		return
	}

	w.Header().Set("Content-Type", imaging.DetectMIME(data))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *GalleryHandler) guestDir(kind, guest string) (string, error) {
	switch kind {
	case "matched":
		return h.layout.MatchedGuestDir(guest), nil
	case "candidates":
		return h.layout.CandidatesGuestDir(guest), nil
	default:
		return "", fmt.Errorf("unknown gallery kind %q", kind)
	}
}

func countImages(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && event.IsImageFile(e.Name()) {
			n++
		}
	}
	return n
}
