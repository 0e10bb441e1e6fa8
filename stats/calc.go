package stats

import "math"

// Compute folds a modifier collection over a base value.
//
// Override modifiers short-circuit the fold: the highest-priority one wins,
// with later insertion breaking ties. Otherwise additive values sum with the
// base and the result scales by the product of multiplicative values. The
// result is clamped, then rounded half-away-from-zero when decimalPlaces is
// set. Pure and deterministic for identical inputs.
func Compute(base float64, modifiers []Modifier, clampMin, clampMax *float64, decimalPlaces *int) float64 {
	result := base

	var override *Modifier
	for i := range modifiers {
		mod := &modifiers[i]
		if mod.Kind != KindOverride {
			continue
		}
		if override == nil || mod.Priority >= override.Priority {
			override = mod
		}
	}

	if override != nil {
		result = override.Value
	} else {
		multiplier := 1.0
		for i := range modifiers {
			switch modifiers[i].Kind {
			case KindAdditive:
				result += modifiers[i].Value
			case KindMultiplicative:
				multiplier *= modifiers[i].Value
			}
		}
		result *= multiplier
	}

	if clampMin != nil && result < *clampMin {
		result = *clampMin
	}
	if clampMax != nil && result > *clampMax {
		result = *clampMax
	}
	if decimalPlaces != nil {
		result = roundTo(result, *decimalPlaces)
	}
	return result
}

// roundTo rounds half-away-from-zero to the given number of fractional digits.
func roundTo(value float64, places int) float64 {
	if places < 0 {
		places = 0
	}
	shift := math.Pow(10, float64(places))
	return math.Round(value*shift) / shift
}
