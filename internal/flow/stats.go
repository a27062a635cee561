package flow

import (
	"sort"
	"time"
)

// Stats is a rolling aggregate over the flow ring's current contents.
type Stats struct {
	TotalFlows    int
	Completed     int
	Errors        int
	ErrorRate     float64
	P50Duration   time.Duration
	AvgDuration   time.Duration
	TotalInputTokens  int
	TotalOutputTokens int
}

// Compute aggregates over every record currently in the ring.
func (r *Recorder) Compute() Stats {
	all := r.All()
	return computeStats(all)
}

func computeStats(all []Record) Stats {
	s := Stats{TotalFlows: len(all)}
	if len(all) == 0 {
		return s
	}

	var durations []time.Duration
	var totalDuration time.Duration

	for _, rec := range all {
		switch rec.State {
		case StateCompleted:
			s.Completed++
		case StateError:
			s.Errors++
		}
		s.TotalInputTokens += rec.Usage.InputTokens
		s.TotalOutputTokens += rec.Usage.OutputTokens

		if d := rec.Duration(); d > 0 {
			durations = append(durations, d)
			totalDuration += d
		}
	}

	if s.TotalFlows > 0 {
		s.ErrorRate = float64(s.Errors) / float64(s.TotalFlows)
	}
	if len(durations) > 0 {
		sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
		s.P50Duration = durations[len(durations)/2]
		s.AvgDuration = totalDuration / time.Duration(len(durations))
	}
	return s
}
