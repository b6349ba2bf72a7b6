package quiz

import "fmt"

// ValidateBands checks a band list at authoring time. Ranges are inclusive on
// both ends. Touching boundaries (one band ending at 79, the next starting at
// 80) are legal; true intersection is an error. Gaps are legal but reported
// as warnings so authors can close them.
func ValidateBands(bands []Band) (warnings []string, err error) {
	for i, b := range bands {
		if b.Min < 0 || b.Max > 100 {
			return nil, fmt.Errorf("band %d: range %d-%d outside 0-100", i, b.Min, b.Max)
		}
		if b.Min > b.Max {
			return nil, fmt.Errorf("band %d: min %d greater than max %d", i, b.Min, b.Max)
		}
	}
	for i := 0; i < len(bands); i++ {
		for j := i + 1; j < len(bands); j++ {
			a, b := bands[i], bands[j]
			if a.Min <= b.Max && b.Min <= a.Max {
				return nil, fmt.Errorf("band %d (%d-%d) overlaps band %d (%d-%d)",
					i, a.Min, a.Max, j, b.Min, b.Max)
			}
		}
	}
	if len(bands) > 0 {
		covered := make([]bool, 101)
		for _, b := range bands {
			for p := b.Min; p <= b.Max && p <= 100; p++ {
				covered[p] = true
			}
		}
		gapStart := -1
		for p := 0; p <= 100; p++ {
			if !covered[p] && gapStart < 0 {
				gapStart = p
			}
			if (covered[p] || p == 100) && gapStart >= 0 {
				gapEnd := p - 1
				if p == 100 && !covered[p] {
					gapEnd = 100
				}
				warnings = append(warnings, fmt.Sprintf("no feedback band covers %d-%d", gapStart, gapEnd))
				gapStart = -1
			}
		}
	}
	return warnings, nil
}

// MatchBand picks the feedback band for a final rounded percent: the first
// band in list order with min <= percent <= max. Overlaps are tolerated here
// (first match wins); preventing them is ValidateBands' job.
func MatchBand(bands []Band, percent int) (Band, bool) {
	for _, b := range bands {
		if b.Min <= percent && percent <= b.Max {
			return b, true
		}
	}
	return Band{}, false
}
