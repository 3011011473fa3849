package match

// Effective holds the thresholds actually applied to one face after group
// and single-guest adjustments.
type Effective struct {
	Tol           float64
	Margin        float64
	RelaxedTol    float64
	RelaxedMargin float64
	SingleGuest   bool
}

// effectiveThresholds adapts the base profile thresholds to one photo.
//
// Crowded photos carry a higher false-positive risk, so every GroupAdjust
// entry the face count reaches tightens the tolerance and widens the
// required margin. With a single registered guest there is no competitor:
// the margin requirement is waived and the tolerances are raised toward the
// profile's typical-good-match values.
func effectiveThresholds(opts Options, faceCount int, singleGuest bool) Effective {
	var tolAdj, marginAdj float64
	for _, g := range opts.GroupAdjusts {
		if faceCount >= g.MinFaces {
			tolAdj += g.TolAdjust
			marginAdj += g.MarginAdjust
		}
	}

	relaxedTol := min(opts.RelaxedCap, opts.Profile.Tolerance+opts.RelaxedOffset)
	relaxedMargin := max(opts.RelaxedMarginFloor, opts.Profile.Margin*0.5)

	eff := Effective{
		Tol:           max(0.01, opts.Profile.Tolerance+tolAdj),
		Margin:        max(0.0, opts.Profile.Margin+marginAdj),
		RelaxedTol:    min(opts.EffectiveRelaxedCap, relaxedTol+tolAdj),
		RelaxedMargin: max(0.01, relaxedMargin+marginAdj*0.5),
		SingleGuest:   singleGuest,
	}

	if singleGuest {
		eff.Tol = max(eff.Tol, opts.Profile.TypicalGoodMatch)
		eff.RelaxedTol = max(eff.RelaxedTol, opts.Profile.TypicalGoodRelaxed)
		eff.Margin = 0
		eff.RelaxedMargin = 0
	}

	return eff
}
