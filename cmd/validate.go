package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/guestlens/guestlens/internal/constants"
	"github.com/guestlens/guestlens/internal/event"
	"github.com/guestlens/guestlens/internal/imaging"
)

var validateCmd = &cobra.Command{
	Use:   "validate [event-path]",
	Short: "Check an event directory before running the matcher",
	Long: `Validate the event tree without touching it: verify the expected
directory layout, count guests and selfies, and probe every photo for
problems the matcher would skip (unreadable, empty, oversized files,
tiny images).

With --hash-dups, perceptual hashes are computed for the whole dump and
near-identical photos are reported. Useful for spotting burst shots and
double exports before a long run.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().Bool("hash-dups", false, "Detect near-duplicate photos via perceptual hashes")
}

func runValidate(cmd *cobra.Command, args []string) error {
	hashDups := mustGetBool(cmd, "hash-dups")

	layout, err := event.Open(args[0])
	if err != nil {
		return err
	}

	guests, err := layout.ListGuests()
	if err != nil {
		return err
	}

	fmt.Printf("Event: %s\n\n", layout.Root)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GUEST\tSELFIES")
	fmt.Fprintln(w, "-----\t-------")
	for _, g := range guests {
		fmt.Fprintf(w, "%s\t%d\n", g.Key, len(g.Selfies))
	}
	w.Flush()

	photos, err := layout.ListPhotos()
	if err != nil {
		return err
	}
	fmt.Printf("\n%d guests, %d photos in the dump\n\n", len(guests), len(photos))

	problems := probePhotos(photos)
	for _, p := range problems {
		fmt.Printf("Warning: %s\n", p)
	}

	if hashDups {
		dups := findNearDuplicates(photos)
		if len(dups) == 0 {
			fmt.Println("No near-duplicate photos found")
		} else {
			fmt.Printf("\n%d near-duplicate pairs:\n", len(dups))
			for _, d := range dups {
				fmt.Printf("  %s ~ %s\n", filepath.Base(d[0]), filepath.Base(d[1]))
			}
		}
	}

	if len(problems) == 0 {
		fmt.Println("Event directory looks good")
	} else {
		fmt.Printf("\n%d files would be skipped by the matcher\n", len(problems))
	}
	return nil
}

// probePhotos loads every photo with the matcher's intake limits and
// collects a message per file the sweep would skip.
func probePhotos(photos []string) []string {
	limits := imaging.LoadLimits{
		MaxFileBytes: constants.MaxPhotoFileBytes,
		MinDimension: constants.MinImageDimension,
	}

	var problems []string
	for _, path := range photos {
		if _, _, _, err := imaging.LoadImage(path, limits); err != nil {
			problems = append(problems, err.Error())
		}
	}
	return problems
}

// findNearDuplicates hashes every readable photo and reports pairs within
// the hamming threshold on both the perceptual and difference hash.
func findNearDuplicates(photos []string) [][2]string {
	type hashed struct {
		path   string
		hashes imaging.Hashes
	}

	bar := progressbar.NewOptions(len(photos),
		progressbar.OptionSetDescription("Hashing photos"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	var entries []hashed
	for _, path := range photos {
		bar.Add(1)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		h, err := imaging.ComputeHashes(data)
		if err != nil {
			continue
		}
		entries = append(entries, hashed{path: path, hashes: h})
	}
	fmt.Println()

	var dups [][2]string
	for i := range entries {
		for j := i + 1; j < len(entries); j++ {
			if imaging.NearDuplicate(entries[i].hashes, entries[j].hashes, constants.DuplicateHammingThreshold) {
				dups = append(dups, [2]string{entries[i].path, entries[j].path})
			}
		}
	}
	return dups
}
