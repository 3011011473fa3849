package match

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/guestlens/guestlens/internal/constants"
	"github.com/guestlens/guestlens/internal/face"
)

// ProgressInfo is handed to the progress callback once per processed photo.
type ProgressInfo struct {
	Pass    int
	Current int
	Total   int
	Photo   string
}

// Stats tallies one run across all passes.
type Stats struct {
	Passes          int `json:"passes"`
	GuestsRefined   int `json:"guests_refined"`
	PhotosScanned   int `json:"photos_scanned"`
	PhotosFailed    int `json:"photos_failed"`
	FacesSeen       int `json:"faces_seen"`
	Accepted        int `json:"accepted"`
	AcceptedRelaxed int `json:"accepted_relaxed"`
	Rejected        int `json:"rejected"`
	Candidates      int `json:"candidates"`
	Rechecks        int `json:"rechecks"`
	RecheckFailures int `json:"recheck_failures"`
	Delivered       int `json:"delivered"`
	DuplicateSkips  int `json:"duplicate_skips"`
	CandidateCopies int `json:"candidate_copies"`
}

// Runner drives the sweep: parallel extraction ahead of a strictly
// sequential decision phase, repeated over the configured number of passes
// with bootstrap refinement in between.
type Runner struct {
	Extractor Extractor
	Recorder  *Recorder
	Opts      Options
	Metric    face.DistanceFunc

	// Workers bounds parallel extraction. Decisions are always applied in
	// sorted photo order, so results are worker-count independent.
	Workers int

	// OnProgress, when set, is called after each photo of each pass.
	OnProgress func(ProgressInfo)
}

// photoResult carries one photo's extraction to the decision phase.
type photoResult struct {
	index int
	ext   *Extraction
	err   error
}

// Run executes all passes over the photo set. Pass one uses the tiered
// engine; later passes refine profiles from collected samples and sweep with
// the simplified fixed-tolerance policy. All passes share the recorder's
// dedup state, so no pass can deliver a photo twice.
func (r *Runner) Run(ctx context.Context, profiles []*GuestProfile, photos []string) (*Stats, error) {
	stats := &Stats{}
	engine := NewEngine(r.Opts, NewRanker(profiles, r.Metric), r.Extractor)
	refiner := NewRefiner(r.Opts, r.Extractor)

	passes := r.Opts.Passes
	if passes < 1 {
		passes = 1
	}

	for pass := 1; pass <= passes; pass++ {
		if pass > 1 {
			refined, err := refiner.Refine(ctx, profiles, engine.Samples())
			if err != nil {
				return stats, err
			}
			if refined == 0 {
				log.Info("no guest collected enough samples to refine, skipping remaining passes")
				break
			}
			stats.GuestsRefined = refined
			engine.SetRanker(NewRefinedRanker(profiles, r.Metric))
			engine.ResetSamples()
		}

		stats.Passes = pass
		log.WithFields(log.Fields{"pass": pass, "photos": len(photos)}).Info("starting sweep")
		if err := r.sweep(ctx, engine, photos, pass, stats); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

// sweep processes every photo once: extraction in parallel, decisions in
// sorted photo order.
func (r *Runner) sweep(ctx context.Context, engine *Engine, photos []string, pass int, stats *Stats) error {
	workers := r.Workers
	if workers <= 0 {
		workers = 1
	}

	resultsChan := make(chan photoResult, len(photos))
	semaphore := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i := range photos {
		wg.Add(1)
		go func(idx int, path string) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			if ctx.Err() != nil {
				resultsChan <- photoResult{index: idx, err: ctx.Err()}
				return
			}

			ext, err := r.Extractor.ExtractFile(ctx, path, face.FidelityFast)
			resultsChan <- photoResult{index: idx, ext: ext, err: err}
		}(i, photos[i])
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	results := make([]*photoResult, len(photos))
	for res := range resultsChan {
		res := res
		results[res.index] = &res
	}

	for i, res := range results {
		if err := ctx.Err(); err != nil {
			return err
		}

		r.applyResult(ctx, engine, res, pass, stats, photos[i])
		if r.OnProgress != nil {
			r.OnProgress(ProgressInfo{Pass: pass, Current: i + 1, Total: len(photos), Photo: photos[i]})
		}
		if (i+1)%constants.ProgressLogInterval == 0 {
			log.WithFields(log.Fields{
				"pass": pass, "done": i + 1, "total": len(photos),
				"accepted": stats.Accepted + stats.AcceptedRelaxed, "candidates": stats.Candidates,
			}).Debug("sweep progress")
		}
	}
	return nil
}

// applyResult turns one photo's extraction into decisions and recordings.
// Per-item failures are logged and counted, never fatal.
func (r *Runner) applyResult(ctx context.Context, engine *Engine, res *photoResult, pass int, stats *Stats, path string) {
	if res == nil || res.err != nil {
		stats.PhotosFailed++
		if res != nil {
			log.WithField("photo", path).Warnf("photo skipped: %v", res.err)
		}
		return
	}

	stats.PhotosScanned++
	if len(res.ext.Detections) == 0 {
		log.WithField("photo", path).Debug("no faces found")
		return
	}

	for _, det := range res.ext.Detections {
		stats.FacesSeen++

		var decision Decision
		if pass == 1 {
			decision = engine.DecideFace(ctx, res.ext, det)
		} else {
			decision = engine.DecideRefined(res.ext, det)
		}
		r.recordDecision(decision, stats)
	}
}

// recordDecision logs the decision with its distances and thresholds, then
// routes accepts and candidates to the recorder.
func (r *Runner) recordDecision(d Decision, stats *Stats) {
	fields := log.Fields{
		"photo": d.Photo, "face": d.FaceIndex, "outcome": d.Outcome,
		"best": d.Best, "second": d.SecondBest, "delta": d.Delta,
		"tol": d.Thresholds.Tol, "margin": d.Thresholds.Margin,
	}
	if d.Guest != nil {
		fields["guest"] = d.Guest.Key
	}
	if d.Rechecked {
		stats.Rechecks++
		fields["recheck"] = d.RecheckOK
		if !d.RecheckOK {
			stats.RecheckFailures++
		}
	}
	log.WithFields(fields).Debug("decision")

	switch d.Outcome {
	case OutcomeAccepted:
		stats.Accepted++
	case OutcomeAcceptedRelaxed:
		stats.AcceptedRelaxed++
	case OutcomeCandidate:
		stats.Candidates++
	case OutcomeRejected:
		stats.Rejected++
	}

	if d.Outcome.Accepted() && d.Guest != nil {
		res, err := r.Recorder.Deliver(d.Guest.Key, d.Photo)
		if err != nil {
			log.WithFields(log.Fields{"guest": d.Guest.Key, "photo": d.Photo}).
				Errorf("delivery failed: %v", err)
			return
		}
		switch res {
		case Delivered, DryRun:
			stats.Delivered++
			log.WithFields(log.Fields{"guest": d.Guest.Key, "photo": d.Photo, "tier": d.Outcome}).
				Info("photo delivered")
		case SkippedDuplicate, SkippedExists:
			stats.DuplicateSkips++
		}
		return
	}

	if d.Outcome == OutcomeCandidate && d.Guest != nil {
		res, err := r.Recorder.SaveCandidate(d.Guest.Key, d.Photo)
		if err != nil {
			log.WithFields(log.Fields{"guest": d.Guest.Key, "photo": d.Photo}).
				Errorf("candidate save failed: %v", err)
			return
		}
		if res == Delivered || res == DryRun {
			stats.CandidateCopies++
			r.logCandidateRanking(d)
		}
	}
}

// logCandidateRanking prints the top ranked guests for a kept candidate, so
// a reviewer can see who else was close.
func (r *Runner) logCandidateRanking(d Decision) {
	for i, gd := range d.TopRanked {
		log.WithFields(log.Fields{
			"photo": d.Photo, "face": d.FaceIndex, "rank": i + 1,
			"guest": gd.Guest.Key, "distance": gd.Distance,
		}).Info("candidate ranking")
	}
}
