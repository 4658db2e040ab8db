// Package chart turns stored readings into plot-ready series and time-axis ticks.
// Everything here is pure: no I/O and no clock.
package chart

import (
	"sort"
	"time"

	"sensorpipe/internal/model"
)

const (
	DefaultMaxTicks = 10
	DefaultWindow   = 5

	FullLabelLayout  = "02.01 15:04"
	ShortLabelLayout = "15:04"
)

// Point is one plotted sample. Y is what gets drawn, Raw is the stored value.
// Both are nil where no measurement was obtained.
type Point struct {
	X      time.Time `json:"x"`
	Y      *float64  `json:"y"`
	Raw    *float64  `json:"raw"`
	Status string    `json:"status"`
}

type Series struct {
	SensorID string  `json:"sensor_id"`
	Points   []Point `json:"points"`
	Smoothed bool    `json:"smoothed"`
	// ConnectGaps tells the renderer to bridge nil points. It is only set on smoothed series.
	ConnectGaps bool `json:"connect_gaps"`
}

type Tick struct {
	At    time.Time `json:"at"`
	Label string    `json:"label"`
	Full  bool      `json:"full"`
}

type Options struct {
	// Sensors selects and orders the series.
	Sensors []string
	// Window is the moving average width. Values below 2 disable smoothing.
	Window   int
	MaxTicks int
	Location *time.Location
}

type Chart struct {
	Series []Series `json:"series"`
	Ticks  []Tick   `json:"ticks"`
}

// Group buckets readings by sensor, each bucket sorted ascending by timestamp.
// Readings with equal timestamps keep their input order.
func Group(readings []model.Reading) map[string][]model.Reading {
	groups := make(map[string][]model.Reading)
	for _, r := range readings {
		groups[r.SensorID] = append(groups[r.SensorID], r)
	}
	for _, g := range groups {
		sort.SliceStable(g, func(i, j int) bool { return g[i].Timestamp.Before(g[j].Timestamp) })
	}
	return groups
}

// BuildSeries returns one series per selected sensor that has readings, in selection order.
// A selected sensor without readings gets no series at all.
func BuildSeries(groups map[string][]model.Reading, sensors []string) []Series {
	out := make([]Series, 0, len(sensors))
	seen := make(map[string]struct{}, len(sensors))
	for _, id := range sensors {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		g, ok := groups[id]
		if !ok || len(g) == 0 {
			continue
		}
		s := Series{SensorID: id, Points: make([]Point, len(g))}
		for i, r := range g {
			s.Points[i] = Point{X: r.Timestamp, Y: r.Value, Raw: r.Value, Status: string(r.Status)}
		}
		out = append(out, s)
	}
	return out
}

// Smooth applies a centered moving average of the given window over the non-nil
// values. Nil entries stay nil, and the first and last window/2 non-nil values are
// returned as-is. It reports false, returning values unchanged, when there are
// fewer non-nil values than the window.
func Smooth(values []*float64, window int) ([]*float64, bool) {
	if window < 2 {
		return values, false
	}

	idx := make([]int, 0, len(values))
	for i, v := range values {
		if v != nil {
			idx = append(idx, i)
		}
	}
	if len(idx) < window {
		return values, false
	}

	out := make([]*float64, len(values))
	copy(out, values)

	half := window / 2
	for j := half; j < len(idx)-half; j++ {
		from := j - half
		var sum float64
		for _, k := range idx[from : from+window] {
			sum += *values[k]
		}
		avg := sum / float64(window)
		out[idx[j]] = &avg
	}
	return out, true
}

// SmoothSeries smooths s in place of its Y values and marks it gap-connected.
func SmoothSeries(s Series, window int) Series {
	ys := make([]*float64, len(s.Points))
	for i, p := range s.Points {
		ys[i] = p.Raw
	}
	smoothed, ok := Smooth(ys, window)
	if !ok {
		return s
	}

	pts := make([]Point, len(s.Points))
	for i, p := range s.Points {
		p.Y = smoothed[i]
		pts[i] = p
	}
	return Series{SensorID: s.SensorID, Points: pts, Smoothed: true, ConnectGaps: true}
}

// Build runs the whole transform: group, build series, optionally smooth, pick ticks.
func Build(readings []model.Reading, opts Options) Chart {
	series := BuildSeries(Group(readings), opts.Sensors)
	for i := range series {
		series[i] = SmoothSeries(series[i], opts.Window)
	}
	return Chart{Series: series, Ticks: SelectTicks(series, opts.MaxTicks, opts.Location)}
}
