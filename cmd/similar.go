package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/guestlens/guestlens/internal/config"
	"github.com/guestlens/guestlens/internal/event"
	"github.com/guestlens/guestlens/internal/face"
	"github.com/guestlens/guestlens/internal/index"
	"github.com/guestlens/guestlens/internal/match"
)

var similarCmd = &cobra.Command{
	Use:   "similar [event-path] [image]",
	Short: "Find the dump photos with faces closest to a query image",
	Long: `Index every face detected in the photo dump and print the nearest
faces to the first face of the query image.

This is an operator forensics tool: when a guest reports a missing
photo, point similar at one of their selfies to see which dump photos
contain lookalike faces and at what distance, regardless of what the
matcher decided.

Examples:
  guestlens similar ./wedding ./wedding/selfies/anna/selfie1.jpg
  guestlens similar ./wedding query.jpg --limit 20 --json`,
	Args: cobra.ExactArgs(2),
	RunE: runSimilar,
}

func init() {
	rootCmd.AddCommand(similarCmd)

	similarCmd.Flags().Int("limit", 10, "Maximum number of results")
	similarCmd.Flags().Bool("json", false, "Output as JSON")
}

// SimilarFace is one nearest-neighbor result.
type SimilarFace struct {
	Photo     string  `json:"photo"`
	FaceIndex int     `json:"face_index"`
	Distance  float64 `json:"distance"`
}

// SimilarResults is the JSON output structure.
type SimilarResults struct {
	Query   string        `json:"query"`
	Metric  string        `json:"metric"`
	Results []SimilarFace `json:"results"`
	Count   int           `json:"count"`
}

func runSimilar(cmd *cobra.Command, args []string) error {
	limit := mustGetInt(cmd, "limit")
	jsonOutput := mustGetBool(cmd, "json")

	cfg := config.Load()

	layout, err := event.Open(args[0])
	if err != nil {
		return err
	}

	provider, err := face.New(cfg)
	if err != nil {
		return err
	}
	defer provider.Close()

	cache := openCache(cfg)
	extractor := match.NewFileExtractor(provider, cache)
	ctx := context.Background()

	query, err := extractor.ExtractFile(ctx, args[1], face.FidelityPrecise)
	if err != nil {
		return fmt.Errorf("extract query image: %w", err)
	}
	if len(query.Detections) == 0 {
		return errors.New("no face found in the query image")
	}
	queryFace := query.Detections[0]

	photos, err := layout.ListPhotos()
	if err != nil {
		return err
	}

	faceIndex, err := index.New(provider.MetricName())
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(len(photos),
			progressbar.OptionSetDescription("Indexing faces"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("photos"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
	}

	for _, path := range photos {
		if bar != nil {
			bar.Add(1)
		}
		ext, err := extractor.ExtractFile(ctx, path, face.FidelityFast)
		if err != nil {
			log.WithField("photo", path).Warnf("photo skipped: %v", err)
			continue
		}
		for _, det := range ext.Detections {
			faceIndex.Add(path, det)
		}
	}
	if !jsonOutput {
		fmt.Printf("\nIndexed %d faces\n\n", faceIndex.Count())
	}

	neighbors, err := faceIndex.Search(queryFace.Embedding, limit)
	if err != nil {
		return err
	}

	results := make([]SimilarFace, len(neighbors))
	for i, n := range neighbors {
		results[i] = SimilarFace{Photo: n.Photo, FaceIndex: n.FaceIndex, Distance: n.Distance}
	}

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(SimilarResults{
			Query: args[1], Metric: provider.MetricName(), Results: results, Count: len(results),
		})
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PHOTO\tFACE\tDISTANCE")
	fmt.Fprintln(w, "-----\t----\t--------")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%d\t%.4f\n", filepath.Base(r.Photo), r.FaceIndex, r.Distance)
	}
	w.Flush()
	return nil
}
