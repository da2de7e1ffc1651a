package monitor

import (
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/navsense/fusion/internal/filter"
	"github.com/navsense/fusion/internal/fusion"
	"github.com/navsense/fusion/internal/geodesy"
)

// trackStride caps how many track rows go into the ground-track chart; the
// INS-rate history can run to hundreds of thousands of points.
const maxTrackPoints = 5000

// WriteReport renders an interactive HTML report for the run: the estimated
// ground track, altitude profile, and GPS innovation series.
func WriteReport(path, label string, res *fusion.Result) error {
	page := components.NewPage()
	page.PageTitle = "INS/GPS Fusion Report"

	page.AddCharts(
		groundTrackChart(label, &res.Track),
		altitudeChart(&res.Track),
		innovationChart(&res.Diagnostics),
	)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

// groundTrackChart plots the mechanized position history as a lon/lat
// scatter, colored by elapsed time.
func groundTrackChart(label string, tr *fusion.Track) components.Charter {
	stride := 1
	if tr.Len() > maxTrackPoints {
		stride = tr.Len() / maxTrackPoints
	}

	data := make([]opts.ScatterData, 0, tr.Len()/stride+1)
	for i := 0; i < tr.Len(); i += stride {
		lonDeg := tr.Lon[i] / geodesy.Deg
		latDeg := tr.Lat[i] / geodesy.Deg
		data = append(data, opts.ScatterData{Value: []interface{}{lonDeg, latDeg, tr.Time[i]}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Ground Track", Subtitle: fmt.Sprintf("run=%s samples=%d stride=%d", label, tr.Len(), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Longitude (°)", NameLocation: "middle", NameGap: 25, Scale: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Latitude (°)", NameLocation: "middle", NameGap: 40, Scale: opts.Bool(true)}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(tr.Time[0]),
			Max:        float32(tr.Time[tr.Len()-1]),
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#31688e", "#35b779", "#fde725"}},
		}),
	)
	scatter.AddSeries("track", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	return scatter
}

// altitudeChart plots the mechanized altitude over time.
func altitudeChart(tr *fusion.Track) components.Charter {
	stride := 1
	if tr.Len() > maxTrackPoints {
		stride = tr.Len() / maxTrackPoints
	}

	x := make([]string, 0, tr.Len()/stride+1)
	y := make([]opts.LineData, 0, tr.Len()/stride+1)
	for i := 0; i < tr.Len(); i += stride {
		x = append(x, fmt.Sprintf("%.2f", tr.Time[i]))
		y = append(y, opts.LineData{Value: tr.Alt[i]})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Altitude", Subtitle: "mechanized, meters above ellipsoid"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Alt (m)", Scale: opts.Bool(true)}),
	)
	line.SetXAxis(x).AddSeries("altitude", y)
	return line
}

// innovationChart plots the six GPS innovation components per epoch. Epoch 0
// is the seeded zero row and is skipped.
func innovationChart(d *fusion.Diagnostics) components.Charter {
	labels := []string{"vN", "vE", "vD", "posN", "posE", "posD"}

	x := make([]string, 0, d.Len())
	series := make([][]opts.LineData, filter.MeasDim)
	for i := 1; i < d.Len(); i++ {
		x = append(x, fmt.Sprintf("%.2f", d.Time[i]))
		for comp := 0; comp < filter.MeasDim; comp++ {
			series[comp] = append(series[comp], opts.LineData{Value: d.Innovation[i][comp]})
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "GPS Innovation", Subtitle: "velocity (m/s) and scaled position (m)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)
	line.SetXAxis(x)
	for comp := 0; comp < filter.MeasDim; comp++ {
		line.AddSeries(labels[comp], series[comp])
	}
	return line
}
