package face

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// CostClass labels how expensive a detection strategy is to run.
type CostClass string

const (
	CostCheap     CostClass = "cheap"
	CostExpensive CostClass = "expensive"
)

// Strategy is one rung of a detection ladder: a named detector invocation
// with a declared cost class.
type Strategy struct {
	Name string
	Cost CostClass
	Run  func(ctx context.Context, image []byte) ([]Detection, error)
}

// Ladder is an ordered list of detection strategies, cheapest first.
// Extraction escalates rung by rung until one finds faces.
type Ladder []Strategy

// Extract walks the ladder until a strategy yields at least one face.
// Returns the detections and the name of the strategy that produced them.
// A rung that errors is skipped; the last error surfaces only when every
// rung failed. All rungs finding nothing is an empty result, not an error.
func (l Ladder) Extract(ctx context.Context, image []byte) ([]Detection, string, error) {
	var lastErr error
	failed := 0

	for _, s := range l {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		dets, err := s.Run(ctx, image)
		if err != nil {
			log.WithFields(log.Fields{"strategy": s.Name, "cost": s.Cost}).
				Debugf("detection strategy failed: %v", err)
			lastErr = err
			failed++
			continue
		}
		if len(dets) > 0 {
			return dets, s.Name, nil
		}
	}

	if failed == len(l) && lastErr != nil {
		return nil, "", lastErr
	}
	return nil, "", nil
}
