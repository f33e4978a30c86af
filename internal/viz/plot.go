package viz

import (
	"math"

	"github.com/guptarohit/asciigraph"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/simgrad/internal/storage"
)

// Plot draws one series as an ASCII line chart. A series with no finite
// value renders as the empty string.
func Plot(series []float64, caption string, width, height int) string {
	if !anyFinite(series) {
		return ""
	}
	return asciigraph.Plot(series,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption))
}

// PlotMany overlays several series of equal length, e.g. state channels.
func PlotMany(series [][]float64, caption string, width, height int) string {
	ok := false
	for _, s := range series {
		ok = ok || anyFinite(s)
	}
	if !ok {
		return ""
	}
	colors := []asciigraph.AnsiColor{asciigraph.Red, asciigraph.Green, asciigraph.Blue, asciigraph.Yellow, asciigraph.Cyan, asciigraph.Magenta}
	used := make([]asciigraph.AnsiColor, len(series))
	for i := range used {
		used[i] = colors[i%len(colors)]
	}
	return asciigraph.PlotMany(series,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.SeriesColors(used...),
		asciigraph.Caption(caption))
}

// Norms returns the Frobenius norm of the state Jacobian for every record.
// Skipped steps contribute NaN, which asciigraph leaves as a gap.
func Norms(records []storage.JacobianRecord) []float64 {
	out := make([]float64, len(records))
	for i, r := range records {
		if r.Jacobians == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = mat.Norm(r.Jacobians.State, 2)
	}
	return out
}

func anyFinite(v []float64) bool {
	for _, x := range v {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			return true
		}
	}
	return false
}
