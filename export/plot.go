package export

import (
	"errors"
	"fmt"
	"sort"

	"github.com/swdee/go-nightjar/tracker"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// ErrNoTrails is returned by PlotTrails when no track has two points to join
var ErrNoTrails = errors.New("no trails to plot")

// PlotTrails draws every track's point history in frame coordinates and
// saves the plot to path, the image format is taken from the file
// extension.  The Y axis is inverted so the plot reads like the video frame.
func PlotTrails(histories map[int][]tracker.Point, width, height int,
	path string) error {

	p := plot.New()
	p.Title.Text = "Track trails"
	p.X.Label.Text = "x (px)"
	p.Y.Label.Text = "y (px)"

	p.X.Min = 0
	p.X.Max = float64(width)
	p.Y.Min = 0
	p.Y.Max = float64(height)
	p.Y.Scale = plot.InvertedScale{Normalizer: plot.LinearScale{}}

	ids := make([]int, 0, len(histories))

	for id := range histories {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	lines := 0

	for _, id := range ids {

		for partIdx, part := range splitAbsent(histories[id]) {

			line, err := plotter.NewLine(part)

			if err != nil {
				return fmt.Errorf("error creating line for track %d: %w", id, err)
			}

			line.Color = plotutil.Color(id)
			line.Width = vg.Points(1.5)
			p.Add(line)

			if partIdx == 0 {
				p.Legend.Add(fmt.Sprintf("track %d", id), line)
			}

			lines++
		}
	}

	if lines == 0 {
		return ErrNoTrails
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	aspect := 1.0

	if width > 0 {
		aspect = float64(height) / float64(width)
	}

	if err := p.Save(10*vg.Inch, vg.Length(10*aspect)*vg.Inch, path); err != nil {
		return fmt.Errorf("error saving trail plot: %w", err)
	}

	return nil
}

// splitAbsent breaks a history into runs of at least two valid points
func splitAbsent(points []tracker.Point) []plotter.XYs {

	var (
		parts []plotter.XYs
		cur   plotter.XYs
	)

	flush := func() {
		if len(cur) >= 2 {
			parts = append(parts, cur)
		}
		cur = nil
	}

	for _, pt := range points {

		if !pt.Valid() {
			flush()
			continue
		}

		cur = append(cur, plotter.XY{X: float64(pt.X), Y: float64(pt.Y)})
	}

	flush()

	return parts
}
