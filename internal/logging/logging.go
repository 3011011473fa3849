// Package logging configures the process-wide structured logger.
package logging

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

// Init sets up the global logrus logger. Debug enables per-decision logs,
// quiet drops everything below warnings.
func Init(debug, quiet bool) {
	switch {
	case debug:
		log.SetLevel(log.DebugLevel)
	case quiet:
		log.SetLevel(log.WarnLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	log.SetOutput(os.Stderr)
}

// TeeToFile additionally mirrors log output into the given file, typically
// the per-run log inside the event root. The returned closer flushes the file.
func TeeToFile(path string) (io.Closer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	log.SetOutput(io.MultiWriter(os.Stderr, file))
	return file, nil
}
