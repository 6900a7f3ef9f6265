package report

import (
	"fmt"
	"image/color"
	"math"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"pcapconv/internal/conv"
)

// ====== Timing Visualisations ======

var fileSafe = strings.NewReplacer(":", "_", "-", "__", ".", "_")

// PlotTimings writes a response-time and an inter-gap scatter plot for each
// selected TCP conversation that has samples. selection is "all" or a
// conversation id in either orientation. It returns the files written.
func PlotTimings(r *conv.Registry[conv.TCPConversation], selection, dir string) ([]string, error) {
	var ids []string
	if strings.EqualFold(selection, All) {
		ids = r.Keys()
	} else {
		src, dst, _ := strings.Cut(selection, "-")
		id, _, ok := r.Lookup(conv.Key{Canonical: selection, Mirror: dst + "-" + src})
		if !ok {
			return nil, fmt.Errorf("no TCP conversation %q to plot", selection)
		}
		ids = []string{id}
	}

	var files []string
	for _, id := range ids {
		c, _ := r.Get(id)
		for _, series := range []struct {
			kind    string
			title   string
			samples []float64
		}{
			{"response", "Response Times", c.ResponseTimes},
			{"intergap", "Inter-Gap Times", c.InterGapTimes},
		} {
			if len(series.samples) == 0 {
				continue
			}
			path := filepath.Join(dir, fmt.Sprintf("%s_times_%s.png", series.kind, fileSafe.Replace(id)))
			if err := plotSamples(series.samples, fmt.Sprintf("%s for %s", series.title, id), path); err != nil {
				return files, fmt.Errorf("plot %s: %w", id, err)
			}
			files = append(files, path)
		}
	}
	return files, nil
}

// plotSamples draws samples (seconds) against their sequence number, in
// milliseconds.
func plotSamples(samples []float64, title, filename string) error {
	if len(samples) == 0 {
		return fmt.Errorf("no samples to plot")
	}

	pts := make(plotter.XYs, len(samples))
	var maxMS float64
	for i, s := range samples {
		pts[i].X = float64(i + 1)
		pts[i].Y = s * 1000
		maxMS = math.Max(maxMS, pts[i].Y)
	}
	maxCeil := math.Ceil(maxMS)
	if maxCeil == 0 {
		maxCeil = 1
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Sample Number"
	p.Y.Label.Text = "Time (ms)"

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	scatter.GlyphStyle.Shape = draw.CircleGlyph{}
	scatter.GlyphStyle.Color = color.Black
	p.Add(scatter)

	p.Y.Min = 0
	p.Y.Max = maxCeil
	step := tickStep(maxCeil)
	p.Y.Tick.Marker = plot.TickerFunc(func(min, max float64) []plot.Tick {
		var ticks []plot.Tick
		for v := 0.0; v <= maxCeil; v += step {
			ticks = append(ticks, plot.Tick{Value: v, Label: fmt.Sprintf("%gms", v)})
		}
		return ticks
	})

	return p.Save(6*vg.Inch, 4*vg.Inch, filename)
}

// tickStep picks the smallest 1/2/5 step giving at most ten major ticks.
func tickStep(max float64) float64 {
	base := math.Pow(10, math.Floor(math.Log10(max)))
	for _, m := range []float64{0.1, 0.2, 0.5} {
		if max/(base*m) <= 10 {
			return base * m
		}
	}
	return base
}
