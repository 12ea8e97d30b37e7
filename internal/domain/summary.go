package domain

// MergeCounts sums src into dst by key and returns dst (allocating when
// dst is nil). A key present in several per-domain blocks accumulates
// rather than being overwritten.
func MergeCounts(dst, src map[string]int) map[string]int {
	if dst == nil {
		dst = make(map[string]int, len(src))
	}
	for k, v := range src {
		dst[k] += v
	}
	return dst
}

// NewDomainStats returns a zero block with allocated maps, so empty
// summaries marshal as {} rather than null.
func NewDomainStats() DomainStats {
	return DomainStats{
		TopReferrers: map[string]int{},
		TopCountries: map[string]int{},
	}
}
