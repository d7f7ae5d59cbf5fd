package chunk

import "unicode/utf8"

// Stats summarizes a chunking run for reporting.
type Stats struct {
	Count      int
	TotalChars int
	MinChars   int
	MaxChars   int
	AvgChars   float64
}

// ComputeStats aggregates chunk length statistics in runes.
func ComputeStats(chunks []*Chunk) Stats {
	if len(chunks) == 0 {
		return Stats{}
	}

	stats := Stats{Count: len(chunks), MinChars: int(^uint(0) >> 1)}
	for _, c := range chunks {
		n := utf8.RuneCountInString(c.Text)
		stats.TotalChars += n
		if n < stats.MinChars {
			stats.MinChars = n
		}
		if n > stats.MaxChars {
			stats.MaxChars = n
		}
	}
	stats.AvgChars = float64(stats.TotalChars) / float64(stats.Count)
	return stats
}

// Merge combines two chunking runs into one aggregate.
func (s Stats) Merge(other Stats) Stats {
	if other.Count == 0 {
		return s
	}
	if s.Count == 0 {
		return other
	}

	out := Stats{
		Count:      s.Count + other.Count,
		TotalChars: s.TotalChars + other.TotalChars,
		MinChars:   s.MinChars,
		MaxChars:   s.MaxChars,
	}
	if other.MinChars < out.MinChars {
		out.MinChars = other.MinChars
	}
	if other.MaxChars > out.MaxChars {
		out.MaxChars = other.MaxChars
	}
	out.AvgChars = float64(out.TotalChars) / float64(out.Count)
	return out
}
