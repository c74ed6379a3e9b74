package evaluation

import "strconv"

// hitRateCutoffs are the k values reported as hit_rate@k.
var hitRateCutoffs = []int{1, 3, 5, 10}

// Summarize aggregates hit-rate and rank metrics over a result set.
func Summarize(results []*Result) Summary {
	s := Summary{
		TotalQuestions: len(results),
		HitRateAtK:     make(map[string]float64, len(hitRateCutoffs)),
	}
	if len(results) == 0 {
		for _, k := range hitRateCutoffs {
			s.HitRateAtK[strconv.Itoa(k)] = 0
		}
		return s
	}

	var reciprocalSum float64
	hitsAtK := make(map[int]int, len(hitRateCutoffs))
	for _, r := range results {
		if !r.Hit || r.Rank == nil {
			continue
		}
		s.TotalHits++
		reciprocalSum += 1 / float64(*r.Rank)
		for _, k := range hitRateCutoffs {
			if *r.Rank <= k {
				hitsAtK[k]++
			}
		}
	}

	n := float64(len(results))
	s.HitRate = float64(s.TotalHits) / n
	s.MRR = reciprocalSum / n
	for _, k := range hitRateCutoffs {
		s.HitRateAtK[strconv.Itoa(k)] = float64(hitsAtK[k]) / n
	}
	return s
}
