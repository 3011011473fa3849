// Package report builds the machine-readable run report and its console
// summary.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/guestlens/guestlens/internal/match"
)

// Config echoes the settings a run was executed with, so a report can be
// interpreted without the shell history that produced it.
type Config struct {
	Provider  string  `json:"provider"`
	Model     string  `json:"model"`
	Profile   string  `json:"profile"`
	Metric    string  `json:"metric"`
	Tolerance float64 `json:"tolerance"`
	Margin    float64 `json:"margin"`
	Passes    int     `json:"passes"`
	Recheck   string  `json:"recheck"`
	Workers   int     `json:"workers"`
	DryRun    bool    `json:"dry_run,omitempty"`
	Cache     bool    `json:"cache,omitempty"`
}

// GuestSummary is one guest's delivery tally.
type GuestSummary struct {
	Key         string `json:"key"`
	DisplayName string `json:"display_name,omitempty"`
	Matched     int    `json:"matched"`
	Candidates  int    `json:"candidates"`
	Skipped     int    `json:"skipped"`
}

// Diagnostics collects everything that went sideways without aborting the
// run.
type Diagnostics struct {
	SkippedFiles  []string `json:"skipped_files,omitempty"`
	GuestsSkipped []string `json:"guests_without_profiles,omitempty"`
	Errors        []string `json:"errors,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}

// Report is the full run report written to processing_report.json.
type Report struct {
	RunID           string         `json:"run_id"`
	GeneratedAt     time.Time      `json:"generated_at"`
	EventPath       string         `json:"event_path"`
	Interrupted     bool           `json:"interrupted,omitempty"`
	Config          Config         `json:"config"`
	Stats           match.Stats    `json:"stats"`
	Guests          []GuestSummary `json:"guests"`
	Diagnostics     Diagnostics    `json:"diagnostics"`
	DurationSeconds float64        `json:"duration_seconds"`
	PhotosPerSecond float64        `json:"photos_per_second"`
}

// New starts a report for one run.
func New(eventPath string, cfg Config) *Report {
	return &Report{
		RunID:       uuid.New().String(),
		GeneratedAt: time.Now().UTC(),
		EventPath:   eventPath,
		Config:      cfg,
	}
}

// SetStats records the run statistics and derives throughput from the
// elapsed time.
func (r *Report) SetStats(stats match.Stats, elapsed time.Duration) {
	r.Stats = stats
	r.DurationSeconds = elapsed.Seconds()
	if r.DurationSeconds > 0 {
		r.PhotosPerSecond = float64(stats.PhotosScanned) / r.DurationSeconds
	}
}

// SetGuests records per-guest tallies in sorted key order. The names map is
// optional and fills display names from the guest list lookup.
func (r *Report) SetGuests(perGuest map[string]*match.GuestCounts, names map[string]string) {
	r.Guests = r.Guests[:0]
	for key, counts := range perGuest {
		r.Guests = append(r.Guests, GuestSummary{
			Key:         key,
			DisplayName: names[key],
			Matched:     counts.Matched,
			Candidates:  counts.Candidates,
			Skipped:     counts.Skipped,
		})
	}
	sort.Slice(r.Guests, func(i, j int) bool { return r.Guests[i].Key < r.Guests[j].Key })
}

// TotalDelivered sums the matched counts over all guests.
func (r *Report) TotalDelivered() int {
	total := 0
	for _, g := range r.Guests {
		total += g.Matched
	}
	return total
}

// Write stores the report pretty-printed at path. The write is atomic so an
// interrupted run never leaves a truncated report behind.
func Write(r *Report, path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".report-*")
	if err != nil {
		return fmt.Errorf("create temp report: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("store report at %s: %w", path, err)
	}
	return nil
}

// Load reads a previously written report.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return &r, nil
}

// Summary renders the console recap printed at the end of a run.
func (r *Report) Summary() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Processed %d photos (%d failed) in %.1fs (%.1f photos/s)\n",
		r.Stats.PhotosScanned, r.Stats.PhotosFailed, r.DurationSeconds, r.PhotosPerSecond)
	fmt.Fprintf(&b, "Faces: %d seen, %d accepted, %d relaxed, %d candidates, %d rejected\n",
		r.Stats.FacesSeen, r.Stats.Accepted, r.Stats.AcceptedRelaxed,
		r.Stats.Candidates, r.Stats.Rejected)
	if r.Stats.Rechecks > 0 {
		fmt.Fprintf(&b, "Rechecks: %d run, %d demoted\n", r.Stats.Rechecks, r.Stats.RecheckFailures)
	}
	if r.Stats.GuestsRefined > 0 {
		fmt.Fprintf(&b, "Refined %d guest profiles over %d passes\n", r.Stats.GuestsRefined, r.Stats.Passes)
	}

	fmt.Fprintf(&b, "Delivered %d photos to %d guests (%d duplicates skipped)\n",
		r.Stats.Delivered, r.guestsWithMatches(), r.Stats.DuplicateSkips)
	for _, g := range r.Guests {
		name := g.Key
		if g.DisplayName != "" {
			name = fmt.Sprintf("%s (%s)", g.DisplayName, g.Key)
		}
		fmt.Fprintf(&b, "  %-30s %3d matched  %3d candidates\n", name, g.Matched, g.Candidates)
	}

	if r.Stats.Delivered == 0 {
		b.WriteString("Warning: no photos were matched to any guest\n")
	}
	if r.Interrupted {
		b.WriteString("Run was interrupted; the report covers a partial sweep\n")
	}
	return b.String()
}

func (r *Report) guestsWithMatches() int {
	n := 0
	for _, g := range r.Guests {
		if g.Matched > 0 {
			n++
		}
	}
	return n
}
