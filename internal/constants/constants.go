// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Event tree layout
const (
	// SelfiesDirName is the directory under the event root holding one folder per guest
	SelfiesDirName = "selfies"

	// PhotosDirName is the directory under the event root holding the unsorted photo dump
	PhotosDirName = "photos"

	// MatchedDirName is the output directory for accepted matches
	MatchedDirName = "matched"

	// CandidatesDirName is the output directory for near-miss matches kept for review
	CandidatesDirName = "candidates"

	// ReportFileName is the run report written at the event root
	ReportFileName = "processing_report.json"

	// ReviewFileName is the candidate review output written at the event root
	ReviewFileName = "candidates_review.json"

	// RunLogFileName is the per-run log file written at the event root
	RunLogFileName = "guestlens.log"
)

// File intake limits
const (
	// MaxPhotoFileBytes is the largest photo file the matcher will read
	MaxPhotoFileBytes = 50 * 1024 * 1024

	// MinImageDimension is the smallest usable width or height in pixels
	MinImageDimension = 50

	// OversizedImageDimension marks images too large for a CNN recheck pass
	OversizedImageDimension = 3000
)

// Processing constants
const (
	// DefaultWorkerCount is the default number of parallel extraction workers
	DefaultWorkerCount = 4

	// ProgressLogInterval is the number of photos between throughput log lines
	ProgressLogInterval = 50
)

// Candidate review constants
const (
	// DefaultCandidateTopK is the number of candidate guests recorded per rejected face
	DefaultCandidateTopK = 3

	// DefaultMaxCandidateDistance is the largest distance still worth a human look
	DefaultMaxCandidateDistance = 0.90
)

// Duplicate detection constants
const (
	// DuplicateHammingThreshold is the max perceptual hash distance for near-duplicates
	DuplicateHammingThreshold = 10
)
