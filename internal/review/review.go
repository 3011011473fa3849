package review

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/guestlens/guestlens/internal/event"
)

// FileVerdict is one reviewed candidate in the output file.
type FileVerdict struct {
	Guest      string  `json:"guest"`
	Photo      string  `json:"photo"`
	SamePerson bool    `json:"same_person"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// Output is the candidates_review.json document.
type Output struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Provider    string        `json:"provider"`
	Reviewed    int           `json:"reviewed"`
	Confirmed   int           `json:"confirmed"`
	Verdicts    []FileVerdict `json:"verdicts"`
}

// Reviewer walks the recorded candidates and collects model verdicts.
type Reviewer struct {
	Provider Provider
	Layout   *event.Layout

	// Limit caps the number of reviewed candidates, 0 means all.
	Limit int
}

// Run reviews every candidate photo against its guest's first selfie and
// writes the verdict file. Per-candidate failures are recorded in the output,
// not fatal. The verdicts never move or promote a photo.
func (r *Reviewer) Run(ctx context.Context) (*Output, error) {
	guests, err := r.Layout.ListGuests()
	if err != nil {
		return nil, err
	}
	selfies := make(map[string]string, len(guests))
	for _, g := range guests {
		if len(g.Selfies) > 0 {
			selfies[g.Key] = g.Selfies[0]
		}
	}

	out := &Output{
		GeneratedAt: time.Now().UTC(),
		Provider:    r.Provider.Name(),
	}

	candidates, err := r.listCandidates()
	if err != nil {
		return nil, err
	}

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if r.Limit > 0 && out.Reviewed >= r.Limit {
			break
		}

		verdict := r.reviewOne(ctx, c, selfies[c.guest])
		out.Reviewed++
		if verdict.SamePerson && verdict.Error == "" {
			out.Confirmed++
		}
		out.Verdicts = append(out.Verdicts, verdict)

		log.WithFields(log.Fields{
			"guest": c.guest, "photo": c.photo,
			"same_person": verdict.SamePerson, "confidence": verdict.Confidence,
		}).Info("candidate reviewed")
	}

	if err := r.write(out); err != nil {
		return out, err
	}
	return out, nil
}

type candidate struct {
	guest string
	photo string // basename
	path  string
}

// listCandidates walks candidates/<guest>/ in sorted order.
func (r *Reviewer) listCandidates() ([]candidate, error) {
	entries, err := os.ReadDir(r.Layout.CandidatesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read candidates directory: %w", err)
	}

	var out []candidate
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		guestDir := filepath.Join(r.Layout.CandidatesDir(), e.Name())
		files, err := os.ReadDir(guestDir)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", guestDir, err)
		}
		for _, f := range files {
			if f.IsDir() || !event.IsImageFile(f.Name()) {
				continue
			}
			out = append(out, candidate{
				guest: e.Name(),
				photo: f.Name(),
				path:  filepath.Join(guestDir, f.Name()),
			})
		}
	}
	return out, nil
}

func (r *Reviewer) reviewOne(ctx context.Context, c candidate, selfiePath string) FileVerdict {
	v := FileVerdict{Guest: c.guest, Photo: c.photo}

	if selfiePath == "" {
		v.Error = "guest has no selfie to compare against"
		return v
	}

	photo, err := os.ReadFile(c.path)
	if err != nil {
		v.Error = fmt.Sprintf("read candidate: %v", err)
		return v
	}
	selfie, err := os.ReadFile(selfiePath)
	if err != nil {
		v.Error = fmt.Sprintf("read selfie: %v", err)
		return v
	}

	verdict, err := r.Provider.Compare(ctx, photo, selfie)
	if err != nil {
		v.Error = err.Error()
		return v
	}

	v.SamePerson = verdict.SamePerson
	v.Confidence = verdict.Confidence
	v.Reasoning = verdict.Reasoning
	return v
}

// write stores the verdicts atomically at the event root.
func (r *Reviewer) write(out *Output) error {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal review output: %w", err)
	}

	path := r.Layout.ReviewPath()
	tmp, err := os.CreateTemp(filepath.Dir(path), ".review-*")
	if err != nil {
		return fmt.Errorf("create temp review file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write review file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close review file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("store review file at %s: %w", path, err)
	}
	return nil
}
