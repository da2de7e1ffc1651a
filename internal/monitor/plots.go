// Package monitor renders post-run diagnostic artifacts from a completed
// fusion run: PNG time-series of the filter histories and an HTML report
// with the estimated ground track.
package monitor

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/navsense/fusion/internal/filter"
	"github.com/navsense/fusion/internal/fusion"
)

// Plotter writes diagnostic PNGs for a single run into an output directory.
type Plotter struct {
	outputDir string
}

// NewPlotter creates the output directory if needed and returns a Plotter
// rooted there.
func NewPlotter(outputDir string) (*Plotter, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create plot dir: %w", err)
	}
	return &Plotter{outputDir: outputDir}, nil
}

// stateGroups names the triads of the filter state for labeling. The order
// matches the state vector layout.
var stateGroups = []struct {
	name   string
	offset int
	unit   string
	axes   [3]string
}{
	{"attitude", filter.IdxAtt, "rad", [3]string{"N", "E", "D"}},
	{"velocity", filter.IdxVel, "m/s", [3]string{"N", "E", "D"}},
	{"position", filter.IdxPos, "m", [3]string{"N", "E", "D"}},
	{"gyro_bias", filter.IdxGyroBias, "rad/s", [3]string{"X", "Y", "Z"}},
	{"accel_bias", filter.IdxAccelBias, "m/s²", [3]string{"X", "Y", "Z"}},
	{"gyro_drift", filter.IdxGyroDrift, "rad/s", [3]string{"X", "Y", "Z"}},
	{"accel_drift", filter.IdxAccelDrift, "m/s²", [3]string{"X", "Y", "Z"}},
}

// PlotAll renders every diagnostic plot for the run: per-group covariance
// standard deviations, innovation components, and bias estimates. It returns
// the number of PNG files written.
func (pl *Plotter) PlotAll(res *fusion.Result) (int, error) {
	count := 0

	n, err := pl.plotCovariance(&res.Diagnostics)
	if err != nil {
		return count, fmt.Errorf("covariance plots: %w", err)
	}
	count += n

	if err := pl.plotInnovation(&res.Diagnostics); err != nil {
		return count, fmt.Errorf("innovation plot: %w", err)
	}
	count++

	n, err = pl.plotBiases(&res.Diagnostics)
	if err != nil {
		return count, fmt.Errorf("bias plots: %w", err)
	}
	count += n

	return count, nil
}

// plotCovariance writes one PNG per state triad showing the 1σ standard
// deviation (square root of the covariance diagonal) over GPS epochs.
func (pl *Plotter) plotCovariance(d *fusion.Diagnostics) (int, error) {
	if d.Len() == 0 {
		return 0, nil
	}

	written := 0
	for _, grp := range stateGroups {
		p := plot.New()
		p.Title.Text = fmt.Sprintf("Filter 1σ - %s", grp.name)
		p.X.Label.Text = "Time (s)"
		p.Y.Label.Text = grp.unit

		for axis := 0; axis < 3; axis++ {
			pts := make(plotter.XYs, 0, d.Len())
			for i := range d.Time {
				v := d.CovDiag[i][grp.offset+axis]
				if v < 0 {
					v = 0
				}
				pts = append(pts, plotter.XY{X: d.Time[i], Y: math.Sqrt(v)})
			}
			line, err := plotter.NewLine(pts)
			if err != nil {
				return written, err
			}
			line.Color = plotutil.Color(axis)
			line.Width = vg.Points(1)
			p.Add(line)
			p.Legend.Add(grp.axes[axis], line)
		}

		p.Legend.Top = true
		p.Legend.Left = false
		p.Legend.XOffs = -10
		p.Legend.YOffs = -10

		file := filepath.Join(pl.outputDir, fmt.Sprintf("sigma_%s.png", grp.name))
		if err := p.Save(10*vg.Inch, 5*vg.Inch, file); err != nil {
			return written, fmt.Errorf("save %s: %w", grp.name, err)
		}
		written++
	}

	return written, nil
}

// plotInnovation writes a single PNG with the six innovation components
// (velocity then scaled position) over GPS epochs. Epoch 0 is a seeded zero
// row and is skipped.
func (pl *Plotter) plotInnovation(d *fusion.Diagnostics) error {
	if d.Len() < 2 {
		return nil
	}

	p := plot.New()
	p.Title.Text = "GPS Innovation"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Innovation"

	labels := []string{"vN", "vE", "vD", "posN", "posE", "posD"}

	for comp := 0; comp < filter.MeasDim; comp++ {
		pts := make(plotter.XYs, 0, d.Len()-1)
		for i := 1; i < d.Len(); i++ {
			pts = append(pts, plotter.XY{X: d.Time[i], Y: d.Innovation[i][comp]})
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = plotutil.Color(comp)
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(labels[comp], line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	file := filepath.Join(pl.outputDir, "innovation.png")
	if err := p.Save(10*vg.Inch, 5*vg.Inch, file); err != nil {
		return fmt.Errorf("save innovation: %w", err)
	}
	return nil
}

// plotBiases writes one PNG per sensor showing the estimated fixed bias and
// Gauss-Markov drift components over GPS epochs. The bias snapshot rows are
// ordered gyro bias, accel bias, gyro drift, accel drift.
func (pl *Plotter) plotBiases(d *fusion.Diagnostics) (int, error) {
	if d.Len() == 0 {
		return 0, nil
	}

	groups := []struct {
		name   string
		offset int
		unit   string
	}{
		{"gyro_bias_est", 0, "rad/s"},
		{"accel_bias_est", 3, "m/s²"},
		{"gyro_drift_est", 6, "rad/s"},
		{"accel_drift_est", 9, "m/s²"},
	}
	axes := []string{"X", "Y", "Z"}
	written := 0
	for _, grp := range groups {
		p := plot.New()
		p.Title.Text = fmt.Sprintf("Estimated %s", grp.name)
		p.X.Label.Text = "Time (s)"
		p.Y.Label.Text = grp.unit

		for axis := 0; axis < 3; axis++ {
			pts := make(plotter.XYs, 0, d.Len())
			for i := range d.Time {
				pts = append(pts, plotter.XY{X: d.Time[i], Y: d.Biases[i][grp.offset+axis]})
			}
			line, err := plotter.NewLine(pts)
			if err != nil {
				return written, err
			}
			line.Color = plotutil.Color(axis)
			line.Width = vg.Points(1)
			p.Add(line)
			p.Legend.Add(axes[axis], line)
		}

		p.Legend.Top = true
		p.Legend.Left = false
		p.Legend.XOffs = -10
		p.Legend.YOffs = -10

		file := filepath.Join(pl.outputDir, grp.name+".png")
		if err := p.Save(10*vg.Inch, 5*vg.Inch, file); err != nil {
			return written, fmt.Errorf("save %s: %w", grp.name, err)
		}
		written++
	}

	return written, nil
}

