package datasets

// Dataset summary statistics, used by the CLI to sanity-check a prepared
// dataset and to drive length-distribution plots.

// Stats describes the tokenized full-text lengths and the polarity label
// distribution of a dataset.
type Stats struct {
	Count   int
	MinLen  int
	MaxLen  int
	MeanLen float64

	// Lengths holds the full-text token count of every example, in dataset
	// order.
	Lengths []int

	// PolarityCounts maps class index (raw label + 1) to example count.
	PolarityCounts map[int]int
}

// Summarize computes Stats over the whole dataset.
func Summarize(d *Dataset) Stats {
	s := Stats{
		Count:          d.Len(),
		Lengths:        make([]int, 0, d.Len()),
		PolarityCounts: make(map[int]int),
	}
	total := 0
	for i := 0; i < d.Len(); i++ {
		ex, err := d.Example(i)
		if err != nil {
			// Unreachable: i is always in range.
			continue
		}
		l := ex.TextIndices.Len()
		s.Lengths = append(s.Lengths, l)
		total += l
		if i == 0 || l < s.MinLen {
			s.MinLen = l
		}
		if l > s.MaxLen {
			s.MaxLen = l
		}
		s.PolarityCounts[ex.Polarity]++
	}
	if s.Count > 0 {
		s.MeanLen = float64(total) / float64(s.Count)
	}
	return s
}
