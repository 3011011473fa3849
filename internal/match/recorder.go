package match

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/guestlens/guestlens/internal/event"
	"github.com/guestlens/guestlens/internal/imaging"
)

// DeliverResult says what the recorder did with an accept.
type DeliverResult string

const (
	// Delivered means the photo was copied into the guest's folder.
	Delivered DeliverResult = "delivered"
	// SkippedDuplicate means the (guest, photo) pair was already recorded
	// this run.
	SkippedDuplicate DeliverResult = "skipped-duplicate"
	// SkippedExists means the destination file was already there, typically
	// from an earlier run over the same tree.
	SkippedExists DeliverResult = "skipped-exists"
	// DryRun means delivery was suppressed by the dry-run flag.
	DryRun DeliverResult = "dry-run"
)

type recordKey struct {
	guest string
	photo string // basename
}

// GuestCounts tallies deliveries per guest for the report.
type GuestCounts struct {
	Matched    int
	Candidates int
	Skipped    int
}

// Recorder owns the run's dedup state and performs the actual copies. The
// (guest, photo basename) set gates every delivery across all passes: a
// photo matched to a guest once is never copied for them again, even when a
// later pass matches it through a different face.
//
// Safe for concurrent use, though the runner applies decisions sequentially.
type Recorder struct {
	layout *event.Layout
	dryRun bool

	mu         sync.Mutex
	delivered  map[recordKey]struct{}
	candidates map[recordKey]struct{}
	perGuest   map[string]*GuestCounts
}

// NewRecorder creates a recorder for one event tree. With dryRun set, all
// bookkeeping happens but no file is written.
func NewRecorder(layout *event.Layout, dryRun bool) *Recorder {
	return &Recorder{
		layout:     layout,
		dryRun:     dryRun,
		delivered:  make(map[recordKey]struct{}),
		candidates: make(map[recordKey]struct{}),
		perGuest:   make(map[string]*GuestCounts),
	}
}

// PerGuest returns the per-guest delivery tallies.
func (r *Recorder) PerGuest() map[string]*GuestCounts {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*GuestCounts, len(r.perGuest))
	for k, v := range r.perGuest {
		c := *v
		out[k] = &c
	}
	return out
}

func (r *Recorder) counts(guest string) *GuestCounts {
	c, ok := r.perGuest[guest]
	if !ok {
		c = &GuestCounts{}
		r.perGuest[guest] = c
	}
	return c
}

// Deliver copies an accepted photo into matched/<guest>/, unless the pair
// was already recorded or the destination already exists (resume support).
func (r *Recorder) Deliver(guestKey, photoPath string) (DeliverResult, error) {
	return r.record(guestKey, photoPath, r.layout.MatchedGuestDir(guestKey), true)
}

// SaveCandidate copies a near-miss photo into candidates/<guest>/. The
// candidate dedup set is independent of the matched set, so a photo can be
// both delivered to one guest and kept for review for another.
func (r *Recorder) SaveCandidate(guestKey, photoPath string) (DeliverResult, error) {
	return r.record(guestKey, photoPath, r.layout.CandidatesGuestDir(guestKey), false)
}

func (r *Recorder) record(guestKey, photoPath, destDir string, matched bool) (DeliverResult, error) {
	base := filepath.Base(photoPath)
	key := recordKey{guest: guestKey, photo: base}

	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.candidates
	if matched {
		set = r.delivered
	}
	if _, dup := set[key]; dup {
		r.counts(guestKey).Skipped++
		return SkippedDuplicate, nil
	}
	set[key] = struct{}{}

	if r.dryRun {
		r.bump(guestKey, matched)
		return DryRun, nil
	}

	dest := filepath.Join(destDir, base)
	if _, err := os.Stat(dest); err == nil {
		same, err := sameContent(photoPath, dest)
		if err != nil {
			return "", err
		}
		if same {
			r.counts(guestKey).Skipped++
			log.WithFields(log.Fields{"guest": guestKey, "photo": base}).
				Debug("destination already exists, skipping copy")
			return SkippedExists, nil
		}
		// Distinct source file with a colliding name gets a numeric suffix.
		dest = event.UniquePath(dest)
	}

	if err := event.CopyFile(photoPath, dest); err != nil {
		return "", fmt.Errorf("deliver %s for %s: %w", base, guestKey, err)
	}
	r.bump(guestKey, matched)
	return Delivered, nil
}

func (r *Recorder) bump(guestKey string, matched bool) {
	if matched {
		r.counts(guestKey).Matched++
	} else {
		r.counts(guestKey).Candidates++
	}
}

// sameContent compares two files by sha256.
func sameContent(a, b string) (bool, error) {
	da, err := os.ReadFile(a)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", a, err)
	}
	db, err := os.ReadFile(b)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", b, err)
	}
	return imaging.ContentHash(da) == imaging.ContentHash(db), nil
}
