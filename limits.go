package keyset

const (
	MinLimit     = 1
	MaxLimit     = 100
	DefaultLimit = 20
)

// IsNormalizedLimitMax clamps limit into [MinLimit, maxLimit] and reports
// whether the input was already inside the range. An absent or unparseable
// limit is a parsing concern and maps to DefaultLimit before this point;
// here zero and negative values clamp to MinLimit.
func IsNormalizedLimitMax(limit int, maxLimit int) (int, bool) {
	if limit < MinLimit {
		return MinLimit, false
	} else if limit > maxLimit {
		return maxLimit, false
	}

	return limit, true
}

func NormalizeLimitMax(limit int, maxLimit int) int {
	ret, _ := IsNormalizedLimitMax(limit, maxLimit)
	return ret
}

func NormalizeLimit(limit int) int {
	return NormalizeLimitMax(limit, MaxLimit)
}
