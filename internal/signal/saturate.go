package signal

// Saturate combines repeated deficits of one signal type into a single
// deficit in [0,1] using 1 - Π(1 - d_i). One instance is returned unchanged;
// each further instance adds a shrinking share of the remaining headroom, so
// N identical deficits d in (0,1) combine to strictly less than N·d.
func Saturate(deficits []float64) float64 {
	remaining := 1.0
	for _, d := range deficits {
		remaining *= 1 - Clamp(d)
	}
	return 1 - remaining
}

// EffectiveValue returns the combined value of a signal type in snap and
// whether any instance was present.
func EffectiveValue(snap Snapshot, typ string) (value float64, keys []string, ok bool) {
	keys, values := snap.Instances(typ)
	if len(keys) == 0 {
		return 0, nil, false
	}
	deficits := make([]float64, len(values))
	for i, v := range values {
		deficits[i] = 1 - v
	}
	return 1 - Saturate(deficits), keys, true
}
