package match

import (
	"math"
	"sort"

	"github.com/guestlens/guestlens/internal/face"
)

// GuestDistance pairs a guest with their score for one query face.
type GuestDistance struct {
	Guest    *GuestProfile
	Distance float64
}

// Ranking is the full ordering of guests for one query face.
type Ranking struct {
	Best       GuestDistance
	SecondBest GuestDistance // Distance is +Inf when only one guest exists
	All        []GuestDistance
}

// Ranker scores a query embedding against every guest profile.
type Ranker struct {
	profiles []*GuestProfile
	metric   face.DistanceFunc
	refined  bool // rank against refined profiles where available
}

// NewRanker builds a ranker over the original selfie galleries.
func NewRanker(profiles []*GuestProfile, metric face.DistanceFunc) *Ranker {
	return &Ranker{profiles: profiles, metric: metric}
}

// NewRefinedRanker builds a ranker over refined profile vectors only.
// Guests without a refined vector contribute no vectors and rank at +Inf,
// so a refined sweep can never deliver to them.
func NewRefinedRanker(profiles []*GuestProfile, metric face.DistanceFunc) *Ranker {
	return &Ranker{profiles: profiles, metric: metric, refined: true}
}

// SingleGuest reports whether only one guest is registered.
func (r *Ranker) SingleGuest() bool {
	return len(r.profiles) == 1
}

// gallery returns the vectors to compare against for one guest. In refined
// mode an unrefined guest has no vectors at all; their selfie gallery is only
// valid input for further refinement, not for refined matching.
func (r *Ranker) gallery(g *GuestProfile) [][]float32 {
	if r.refined {
		if g.Refined == nil {
			return nil
		}
		return [][]float32{g.Refined}
	}
	return g.Gallery()
}

// Rank scores the query against every stored vector of every guest, reduces
// to the minimum per guest, and sorts ascending. A guest with multiple
// selfies of varying quality is judged by their best vector, so one bad
// selfie never penalizes them. Ties break on guest discovery order, keeping
// the ranking deterministic.
func (r *Ranker) Rank(query []float32) Ranking {
	all := make([]GuestDistance, 0, len(r.profiles))
	for _, g := range r.profiles {
		best := math.Inf(1)
		for _, vec := range r.gallery(g) {
			if d := r.metric(query, vec); d < best {
				best = d
			}
		}
		all = append(all, GuestDistance{Guest: g, Distance: best})
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Distance != all[j].Distance {
			return all[i].Distance < all[j].Distance
		}
		return all[i].Guest.Order < all[j].Guest.Order
	})

	ranking := Ranking{All: all}
	if len(all) > 0 {
		ranking.Best = all[0]
	}
	if len(all) > 1 {
		ranking.SecondBest = all[1]
	} else {
		ranking.SecondBest = GuestDistance{Distance: math.Inf(1)}
	}
	return ranking
}

// Top returns the first k entries of the ranking.
func (rk Ranking) Top(k int) []GuestDistance {
	if k > len(rk.All) {
		k = len(rk.All)
	}
	return rk.All[:k]
}
