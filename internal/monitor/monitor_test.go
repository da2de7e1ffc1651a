package monitor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/navsense/fusion/internal/filter"
	"github.com/navsense/fusion/internal/fusion"
	"github.com/navsense/fusion/internal/synth"
)

func sampleResult(t *testing.T) *fusion.Result {
	t.Helper()
	imu, gps, _ := synth.Generate(synth.Params{
		Start:    fusion.Geodetic{Lat: 0.8, Lon: 0.1, Alt: 50},
		Duration: 3,
		IMUDt:    0.05,
		GPSDt:    1.0,
		IMUNoise: filter.IMUNoise{AngleRandomWalk: 1e-4, VelocityRandomWalk: 1e-3, GyroDriftStd: 1e-6, AccelDriftStd: 1e-5, DriftCorrTime: 300},
		GPSVelStd: 0.1, GPSPosStd: 1, Seed: 3,
	})
	run, err := fusion.NewRun(imu, gps, fusion.DefaultConfig())
	require.NoError(t, err)
	res, err := run.Execute()
	require.NoError(t, err)
	return res
}

func TestPlotAllWritesPNGs(t *testing.T) {
	res := sampleResult(t)

	dir := t.TempDir()
	pl, err := NewPlotter(dir)
	require.NoError(t, err)

	count, err := pl.PlotAll(res)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, count)

	// 7 covariance groups, 1 innovation, 4 bias plots.
	require.Equal(t, 12, count)
	for _, e := range entries {
		require.True(t, strings.HasSuffix(e.Name(), ".png"), "unexpected file %s", e.Name())
		info, err := e.Info()
		require.NoError(t, err)
		require.Greater(t, info.Size(), int64(0))
	}
}

func TestWriteReport(t *testing.T) {
	res := sampleResult(t)

	path := filepath.Join(t.TempDir(), "report.html")
	require.NoError(t, WriteReport(path, "static smoke", res))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(body)
	require.Contains(t, html, "Ground Track")
	require.Contains(t, html, "GPS Innovation")
	require.Contains(t, html, "Altitude")
}
