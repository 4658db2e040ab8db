package chart

import (
	"sort"
	"time"
)

// SelectTicks picks axis labels from the distinct timestamps of all series.
// Candidates are taken at a uniform stride of at most maxTicks, always keeping
// the first and the last. Every local day that has data also keeps its first
// candidate, so a range spanning more days than maxTicks yields one tick per
// day. The first tick, and the first tick of every new local day, carry the
// full date; the rest show the time of day only.
func SelectTicks(series []Series, maxTicks int, loc *time.Location) []Tick {
	if maxTicks <= 0 {
		maxTicks = DefaultMaxTicks
	}
	if maxTicks < 2 {
		maxTicks = 2
	}
	if loc == nil {
		loc = time.Local
	}

	candidates := distinctTimestamps(series)
	n := len(candidates)
	if n == 0 {
		return []Tick{}
	}

	stride := 1
	if n > maxTicks {
		stride = (n - 1 + maxTicks - 2) / (maxTicks - 1)
	}

	keep := make([]bool, n)
	for i := 0; i < n; i += stride {
		keep[i] = true
	}
	keep[n-1] = true
	markDayStarts(candidates, keep, loc)

	picked := make([]time.Time, 0, min(n, maxTicks))
	for i, at := range candidates {
		if keep[i] {
			picked = append(picked, at)
		}
	}

	ticks := make([]Tick, len(picked))
	var prevY, prevD int
	var prevM time.Month
	for i, at := range picked {
		local := at.In(loc)
		y, m, d := local.Date()
		full := i == 0 || y != prevY || m != prevM || d != prevD
		prevY, prevM, prevD = y, m, d

		layout := ShortLabelLayout
		if full {
			layout = FullLabelLayout
		}
		ticks[i] = Tick{At: at, Label: local.Format(layout), Full: full}
	}
	return ticks
}

// markDayStarts keeps the first candidate of every local day none of whose
// candidates is kept yet.
func markDayStarts(candidates []time.Time, keep []bool, loc *time.Location) {
	dayStart, covered := 0, keep[0]
	for i := 1; i <= len(candidates); i++ {
		if i < len(candidates) && sameDay(candidates[i-1], candidates[i], loc) {
			covered = covered || keep[i]
			continue
		}
		if !covered {
			keep[dayStart] = true
		}
		if i < len(candidates) {
			dayStart, covered = i, keep[i]
		}
	}
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

func distinctTimestamps(series []Series) []time.Time {
	seen := make(map[int64]struct{})
	var out []time.Time
	for _, s := range series {
		for _, p := range s.Points {
			key := p.X.UnixNano()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, p.X)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
