package navdb

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/navsense/fusion/internal/filter"
	"github.com/navsense/fusion/internal/fusion"
	"github.com/navsense/fusion/internal/synth"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleResult(t *testing.T) (fusion.Config, *fusion.Result) {
	t.Helper()
	imu, gps, _ := synth.Generate(synth.Params{
		Start:    fusion.Geodetic{Lat: 0.8, Lon: 0.1, Alt: 50},
		Duration: 3,
		IMUDt:    0.05,
		GPSDt:    1.0,
		IMUNoise: filter.IMUNoise{AngleRandomWalk: 1e-4, VelocityRandomWalk: 1e-3, GyroDriftStd: 1e-6, AccelDriftStd: 1e-5, DriftCorrTime: 300},
		GPSVelStd: 0.1, GPSPosStd: 1, Seed: 3,
	})
	cfg := fusion.DefaultConfig()
	run, err := fusion.NewRun(imu, gps, cfg)
	if err != nil {
		t.Fatal(err)
	}
	res, err := run.Execute()
	if err != nil {
		t.Fatal(err)
	}
	return cfg, res
}

func TestSaveAndLoadRun(t *testing.T) {
	db := openTestDB(t)
	cfg, res := sampleResult(t)

	runID, err := db.SaveRun("static smoke", cfg, res)
	if err != nil {
		t.Fatal(err)
	}

	rec, err := db.GetRun(runID)
	if err != nil {
		t.Fatal(err)
	}
	want := &RunRecord{
		RunID:           runID,
		Label:           "static smoke",
		AttitudeMode:    "quaternion",
		PrecisionMode:   "double",
		IMUSamples:      res.Track.Len(),
		GPSEpochs:       res.Diagnostics.Len(),
		SamplesConsumed: res.SamplesConsumed,
	}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Errorf("run record mismatch (-want +got):\n%s", diff)
	}
}

func TestDiagnosticsRoundTrip(t *testing.T) {
	db := openTestDB(t)
	cfg, res := sampleResult(t)

	runID, err := db.SaveRun("", cfg, res)
	if err != nil {
		t.Fatal(err)
	}

	got, err := db.LoadDiagnostics(runID)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(&res.Diagnostics, got); diff != "" {
		t.Errorf("diagnostics mismatch (-saved +loaded):\n%s", diff)
	}
}

func TestTrackRoundTrip(t *testing.T) {
	db := openTestDB(t)
	cfg, res := sampleResult(t)

	runID, err := db.SaveRun("", cfg, res)
	if err != nil {
		t.Fatal(err)
	}

	got, err := db.LoadTrack(runID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != res.Track.Len() {
		t.Fatalf("track rows = %d, want %d", got.Len(), res.Track.Len())
	}
	if diff := cmp.Diff(&res.Track, got); diff != "" {
		t.Errorf("track mismatch (-saved +loaded):\n%s", diff)
	}
}

func TestListRuns(t *testing.T) {
	db := openTestDB(t)
	cfg, res := sampleResult(t)

	if _, err := db.SaveRun("first", cfg, res); err != nil {
		t.Fatal(err)
	}
	if _, err := db.SaveRun("second", cfg, res); err != nil {
		t.Fatal(err)
	}

	recs, err := db.ListRuns()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("listed %d runs, want 2", len(recs))
	}
}

func TestGetRunMissing(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.GetRun("no-such-run"); err == nil {
		t.Fatal("expected error for missing run")
	}
}
