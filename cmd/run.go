package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/guestlens/guestlens/internal/config"
	"github.com/guestlens/guestlens/internal/constants"
	"github.com/guestlens/guestlens/internal/event"
	"github.com/guestlens/guestlens/internal/face"
	"github.com/guestlens/guestlens/internal/guestlist"
	"github.com/guestlens/guestlens/internal/logging"
	"github.com/guestlens/guestlens/internal/match"
	"github.com/guestlens/guestlens/internal/report"
	"github.com/guestlens/guestlens/internal/store"
	"github.com/guestlens/guestlens/internal/store/postgres"
)

var runCmd = &cobra.Command{
	Use:   "run [event-path]",
	Short: "Match the photo dump against the guest selfies",
	Long: `Run the full matching sweep over an event directory.

Every photo in photos/ is scanned for faces, each face is ranked against
the guest profiles built from selfies/, and accepted matches are copied
into matched/<guest>/. Ambiguous near misses land in candidates/<guest>/
for manual review.

Threshold guide:
  --tolerance is the maximum distance for a confident match. For dlib
  euclidean embeddings 0.40-0.50 is typical; for arcface cosine
  distances use the arcface profile (around 0.60). Lower is stricter.

  --margin is the minimum gap to the second-best guest. Raising it cuts
  wrong-guest deliveries on lookalikes at the cost of more candidates.

A second pass refines each guest profile from the first pass's confident
matches and re-sweeps with a fixed tolerance, which typically recovers
photos the selfie-only profiles missed. Use --no-refine to skip it.

Examples:
  # Standard two-pass run
  guestlens run ./wedding

  # Strict single pass, keep the dump untouched
  guestlens run ./wedding --profile strict --no-refine --dry-run

  # InsightFace sidecar with matching thresholds
  guestlens run ./wedding --provider sidecar --profile arcface`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("profile", "balanced", "Matching profile: balanced, strict, loose, arcface")
	runCmd.Flags().String("provider", "", "Face embedding provider: dlib or sidecar (defaults to PROVIDER env)")
	runCmd.Flags().Float64("tolerance", -1, "Override the profile's strict accept distance")
	runCmd.Flags().Float64("margin", -1, "Override the profile's required gap to the runner-up")
	runCmd.Flags().Int("passes", 2, "Number of sweeps; passes after the first use refined profiles")
	runCmd.Flags().Bool("no-refine", false, "Single sweep without bootstrap refinement (same as --passes 1)")
	runCmd.Flags().String("recheck", "auto", "Recheck policy for borderline accepts: auto, always, off")
	runCmd.Flags().Int("workers", constants.DefaultWorkerCount, "Parallel extraction workers")
	runCmd.Flags().Int("limit", 0, "Process only the first N photos (0 = all)")
	runCmd.Flags().Bool("dry-run", false, "Decide and report without copying any files")
}

// openCache initializes the Postgres embedding cache when DATABASE_URL is
// set. A missing cache is not an error, extraction just runs uncached.
func openCache(cfg *config.Config) store.Cache {
	if cfg.Database.URL == "" {
		return nil
	}
	if err := postgres.Initialize(&cfg.Database); err != nil {
		log.Warnf("embedding cache unavailable: %v", err)
		return nil
	}
	cache, err := store.GetCache()
	if err != nil {
		log.Warnf("embedding cache unavailable: %v", err)
		return nil
	}
	log.Info("embedding cache enabled")
	return cache
}

// resolveRecheck parses the recheck flag value.
func resolveRecheck(value string) (match.RecheckPolicy, error) {
	switch match.RecheckPolicy(value) {
	case match.RecheckAuto, match.RecheckAlways, match.RecheckOff:
		return match.RecheckPolicy(value), nil
	default:
		return "", fmt.Errorf("invalid recheck policy: %s (supported: auto, always, off)", value)
	}
}

// lookupDisplayNames resolves guest folder keys to RSVP names when a
// guestlist database is configured. Failures only cost the pretty names.
func lookupDisplayNames(ctx context.Context, cfg *config.Config, profiles []*match.GuestProfile) map[string]string {
	if cfg.Guestlist.DSN == "" {
		return nil
	}
	lookup, err := guestlist.Open(&cfg.Guestlist)
	if err != nil {
		log.Warnf("guestlist unavailable: %v", err)
		return nil
	}
	defer lookup.Close()

	keys := make([]string, len(profiles))
	for i, p := range profiles {
		keys[i] = p.Key
	}
	names, err := lookup.DisplayNames(ctx, keys)
	if err != nil {
		log.Warnf("guestlist lookup failed: %v", err)
		return nil
	}
	return names
}

// newSweepProgress returns a progress callback rendering one bar per pass.
func newSweepProgress() func(match.ProgressInfo) {
	var bar *progressbar.ProgressBar
	pass := 0
	return func(p match.ProgressInfo) {
		if p.Pass != pass {
			pass = p.Pass
			bar = progressbar.NewOptions(p.Total,
				progressbar.OptionSetDescription(fmt.Sprintf("Pass %d", p.Pass)),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString("photos"),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionSetPredictTime(true),
				progressbar.OptionFullWidth(),
			)
		}
		bar.Add(1)
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if name := mustGetString(cmd, "provider"); name != "" {
		cfg.Provider.Name = name
	}

	profileName := mustGetString(cmd, "profile")
	profile, err := cfg.GetMatchProfile(profileName)
	if err != nil {
		return err
	}
	if tol := mustGetFloat64(cmd, "tolerance"); tol >= 0 {
		profile.Tolerance = tol
	}
	if margin := mustGetFloat64(cmd, "margin"); margin >= 0 {
		profile.Margin = margin
	}

	recheck, err := resolveRecheck(mustGetString(cmd, "recheck"))
	if err != nil {
		return err
	}

	passes := mustGetInt(cmd, "passes")
	if mustGetBool(cmd, "no-refine") {
		passes = 1
	}
	if passes < 1 {
		return errors.New("--passes must be at least 1")
	}

	workers := mustGetInt(cmd, "workers")
	limit := mustGetInt(cmd, "limit")
	dryRun := mustGetBool(cmd, "dry-run")

	layout, err := event.Open(args[0])
	if err != nil {
		return err
	}

	logFile, err := logging.TeeToFile(layout.LogPath())
	if err != nil {
		log.Warnf("cannot write run log: %v", err)
	} else {
		defer logFile.Close()
	}

	provider, err := face.New(cfg)
	if err != nil {
		return err
	}
	defer provider.Close()

	if provider.MetricName() != profile.Metric {
		log.Warnf("provider %s produces %s embeddings but profile %s is tuned for %s distances",
			provider.Name(), provider.MetricName(), profileName, profile.Metric)
	}

	metric, err := face.MetricByName(profile.Metric)
	if err != nil {
		return err
	}

	cache := openCache(cfg)
	extractor := match.NewFileExtractor(provider, cache)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	guests, err := layout.ListGuests()
	if err != nil {
		return err
	}
	fmt.Printf("Building guest profiles from %d selfie folders...\n", len(guests))

	profiles, skippedGuests, err := match.BuildProfiles(ctx, extractor, guests)
	if err != nil {
		return err
	}
	for _, key := range skippedGuests {
		fmt.Printf("Warning: guest %s has no usable selfies and will not receive photos\n", key)
	}

	photos, err := layout.ListPhotos()
	if err != nil {
		return err
	}
	if limit > 0 && len(photos) > limit {
		photos = photos[:limit]
	}
	fmt.Printf("Matching %d photos against %d guests...\n", len(photos), len(profiles))

	opts := match.DefaultOptions(profile)
	opts.Recheck = recheck
	opts.Passes = passes

	recorder := match.NewRecorder(layout, dryRun)
	runner := &match.Runner{
		Extractor:  extractor,
		Recorder:   recorder,
		Opts:       opts,
		Metric:     metric,
		Workers:    workers,
		OnProgress: newSweepProgress(),
	}

	start := time.Now()
	stats, runErr := runner.Run(ctx, profiles, photos)
	interrupted := runErr != nil && errors.Is(runErr, context.Canceled)
	fmt.Println()

	rep := report.New(layout.Root, report.Config{
		Provider:  provider.Name(),
		Model:     provider.Model(),
		Profile:   profileName,
		Metric:    profile.Metric,
		Tolerance: profile.Tolerance,
		Margin:    profile.Margin,
		Passes:    passes,
		Recheck:   string(recheck),
		Workers:   workers,
		DryRun:    dryRun,
		Cache:     cache != nil,
	})
	rep.Interrupted = interrupted
	rep.Diagnostics.GuestsSkipped = skippedGuests
	if runErr != nil && !interrupted {
		rep.Diagnostics.Errors = append(rep.Diagnostics.Errors, runErr.Error())
	}
	rep.SetStats(*stats, time.Since(start))
	rep.SetGuests(recorder.PerGuest(), lookupDisplayNames(ctx, cfg, profiles))

	if err := report.Write(rep, layout.ReportPath()); err != nil {
		log.Errorf("failed to write report: %v", err)
	}

	fmt.Println(rep.Summary())

	if runErr != nil && !interrupted {
		return runErr
	}
	return nil
}
