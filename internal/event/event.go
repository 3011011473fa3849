// Package event models the on-disk layout of one event: guest selfies,
// the unsorted photo dump, and the delivery directories the matcher fills.
package event

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/guestlens/guestlens/internal/constants"
)

// ErrNoGuests is returned when the selfies directory holds no guest folders.
var ErrNoGuests = errors.New("no guest folders found")

// imageExtensions lists the file types the matcher reads, lowercase.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".bmp":  true,
}

// Layout resolves paths inside one event root.
type Layout struct {
	Root string
}

// Open validates the event root and returns its layout. The selfies and
// photos directories must exist; output directories are created on demand.
func Open(root string) (*Layout, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve event root: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("event root %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("event root %s is not a directory", abs)
	}

	l := &Layout{Root: abs}
	for _, dir := range []string{l.SelfiesDir(), l.PhotosDir()} {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("required directory %s: %w", dir, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", dir)
		}
	}
	return l, nil
}

func (l *Layout) SelfiesDir() string    { return filepath.Join(l.Root, constants.SelfiesDirName) }
func (l *Layout) PhotosDir() string     { return filepath.Join(l.Root, constants.PhotosDirName) }
func (l *Layout) MatchedDir() string    { return filepath.Join(l.Root, constants.MatchedDirName) }
func (l *Layout) CandidatesDir() string { return filepath.Join(l.Root, constants.CandidatesDirName) }
func (l *Layout) ReportPath() string    { return filepath.Join(l.Root, constants.ReportFileName) }
func (l *Layout) ReviewPath() string    { return filepath.Join(l.Root, constants.ReviewFileName) }
func (l *Layout) LogPath() string       { return filepath.Join(l.Root, constants.RunLogFileName) }

// MatchedGuestDir returns the delivery directory for one guest.
func (l *Layout) MatchedGuestDir(guestKey string) string {
	return filepath.Join(l.MatchedDir(), guestKey)
}

// CandidatesGuestDir returns the review directory for one guest.
func (l *Layout) CandidatesGuestDir(guestKey string) string {
	return filepath.Join(l.CandidatesDir(), guestKey)
}

// Guest is one selfie folder: the folder name is the guest key.
type Guest struct {
	Key     string
	Selfies []string // absolute selfie paths, sorted
}

// ListGuests returns the guest folders in sorted name order. The order is
// part of the matching contract: it breaks ranking ties deterministically.
func (l *Layout) ListGuests() ([]Guest, error) {
	entries, err := os.ReadDir(l.SelfiesDir())
	if err != nil {
		return nil, fmt.Errorf("read selfies directory: %w", err)
	}

	var guests []Guest
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		selfies, err := l.listImages(filepath.Join(l.SelfiesDir(), e.Name()))
		if err != nil {
			return nil, fmt.Errorf("guest %s: %w", e.Name(), err)
		}
		guests = append(guests, Guest{Key: e.Name(), Selfies: selfies})
	}
	if len(guests) == 0 {
		return nil, ErrNoGuests
	}

	sort.Slice(guests, func(i, j int) bool { return guests[i].Key < guests[j].Key })
	return guests, nil
}

// ListPhotos returns the image files of the dump in sorted name order.
func (l *Layout) ListPhotos() ([]string, error) {
	return l.listImages(l.PhotosDir())
}

func (l *Layout) listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !IsImageFile(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// IsImageFile reports whether the filename has a supported image extension.
func IsImageFile(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// UniquePath returns path unchanged if it is free, otherwise the first
// name_N variant (before the extension) that does not exist yet.
func UniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}

	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// CopyFile copies src into dst, creating parent directories. The write goes
// through a temp file and rename so readers never see a partial photo.
func CopyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".copy-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("rename into %s: %w", dst, err)
	}
	return nil
}
