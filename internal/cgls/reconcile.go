package cgls

// findAlignedAOI establishes a box in world coordinates that aligns
// across all translators at 8 decimals. The candidate proposed by the
// translator at startAt must come back unchanged when every other
// translator snaps it; otherwise the search backtracks to the previous
// translator's proposal. Such a box does not need to align in pixel
// space (a 336/112 shape ratio is not enforced).
//
// The bool result is false when no candidate survives. Errors surface
// coverage problems: a box that falls off a dataset cannot reconcile
// and ends the search immediately.
func findAlignedAOI(translators []Translator, requested AOI, startAt int) (AOI, bool, error) {
	if startAt < 0 || startAt > len(translators)-1 {
		return AOI{}, false, nil
	}
	candidate, err := translators[startAt].AlignedAOI(requested)
	if err != nil {
		return AOI{}, false, err
	}
	for i, t := range translators {
		if i == startAt {
			continue
		}
		echo, err := t.AlignedAOI(candidate)
		if err != nil {
			return AOI{}, false, err
		}
		if !aoisEqual(echo, candidate) {
			return findAlignedAOI(translators, requested, startAt-1)
		}
	}
	return candidate, true, nil
}
