// Command fusion runs the loosely-coupled INS/GPS estimator over a synthetic
// scenario, persists the run to SQLite, and renders diagnostic plots and an
// HTML report.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/navsense/fusion/internal/filter"
	"github.com/navsense/fusion/internal/fusion"
	"github.com/navsense/fusion/internal/geodesy"
	"github.com/navsense/fusion/internal/monitor"
	"github.com/navsense/fusion/internal/navdb"
	"github.com/navsense/fusion/internal/synth"
)

// scenarioFile is the JSON scenario description. Angles are degrees in the
// file and converted to radians on load.
type scenarioFile struct {
	LatDeg float64 `json:"lat_deg"`
	LonDeg float64 `json:"lon_deg"`
	AltM   float64 `json:"alt_m"`

	RollDeg  float64 `json:"roll_deg"`
	PitchDeg float64 `json:"pitch_deg"`
	YawDeg   float64 `json:"yaw_deg"`

	BodyRateDegS [3]float64 `json:"body_rate_deg_s"`

	DurationS float64 `json:"duration_s"`
	IMUDtS    float64 `json:"imu_dt_s"`
	GPSDtS    float64 `json:"gps_dt_s"`

	GyroFixedBias  [3]float64 `json:"gyro_fixed_bias"`
	AccelFixedBias [3]float64 `json:"accel_fixed_bias"`
	GyroNoiseStd   float64    `json:"gyro_noise_std"`
	AccelNoiseStd  float64    `json:"accel_noise_std"`

	GPSVelStd float64    `json:"gps_vel_std"`
	GPSPosStd float64    `json:"gps_pos_std"`
	LeverArm  [3]float64 `json:"lever_arm"`

	AngleRandomWalk    float64 `json:"angle_random_walk"`
	VelocityRandomWalk float64 `json:"velocity_random_walk"`
	GyroDriftStd       float64 `json:"gyro_drift_std"`
	AccelDriftStd      float64 `json:"accel_drift_std"`
	DriftCorrTime      float64 `json:"drift_corr_time"`

	Seed int64 `json:"seed"`
}

func (sf *scenarioFile) params() synth.Params {
	return synth.Params{
		Start: fusion.Geodetic{
			Lat: sf.LatDeg * geodesy.Deg,
			Lon: sf.LonDeg * geodesy.Deg,
			Alt: sf.AltM,
		},
		Roll:  sf.RollDeg * geodesy.Deg,
		Pitch: sf.PitchDeg * geodesy.Deg,
		Yaw:   sf.YawDeg * geodesy.Deg,
		BodyRate: geodesy.Vec3{
			sf.BodyRateDegS[0] * geodesy.Deg,
			sf.BodyRateDegS[1] * geodesy.Deg,
			sf.BodyRateDegS[2] * geodesy.Deg,
		},
		Duration:       sf.DurationS,
		IMUDt:          sf.IMUDtS,
		GPSDt:          sf.GPSDtS,
		GyroFixedBias:  geodesy.Vec3(sf.GyroFixedBias),
		AccelFixedBias: geodesy.Vec3(sf.AccelFixedBias),
		GyroNoiseStd:   sf.GyroNoiseStd,
		AccelNoiseStd:  sf.AccelNoiseStd,
		GPSVelStd:      sf.GPSVelStd,
		GPSPosStd:      sf.GPSPosStd,
		LeverArm:       geodesy.Vec3(sf.LeverArm),
		IMUNoise: filter.IMUNoise{
			AngleRandomWalk:    sf.AngleRandomWalk,
			VelocityRandomWalk: sf.VelocityRandomWalk,
			GyroDriftStd:       sf.GyroDriftStd,
			AccelDriftStd:      sf.AccelDriftStd,
			DriftCorrTime:      sf.DriftCorrTime,
		},
		Seed: sf.Seed,
	}
}

func defaultScenario() scenarioFile {
	return scenarioFile{
		LatDeg:             45,
		AltM:               100,
		DurationS:          60,
		IMUDtS:             0.01,
		GPSDtS:             1.0,
		GyroNoiseStd:       1e-4,
		AccelNoiseStd:      1e-3,
		GPSVelStd:          0.05,
		GPSPosStd:          1.5,
		AngleRandomWalk:    1e-4,
		VelocityRandomWalk: 1e-3,
		GyroDriftStd:       1e-5,
		AccelDriftStd:      1e-4,
		DriftCorrTime:      300,
		Seed:               1,
	}
}

func main() {
	scenarioPath := flag.String("scenario", "", "JSON scenario file (default: static 60s scenario at 45N)")
	tuningPath := flag.String("tuning", "", "JSON filter tuning overlay (partial, nil fields keep defaults)")
	attitude := flag.String("attitude", "", "Attitude mode override: quaternion or dcm")
	precision := flag.String("precision", "", "Precision override: double or single")
	dbPath := flag.String("db", "fusion.db", "SQLite database for run history")
	label := flag.String("label", "", "Run label stored with the results")
	outDir := flag.String("out", "fusion-out", "Output directory for plots and report")
	list := flag.Bool("list", false, "List stored runs and exit")
	reportID := flag.String("report", "", "Re-render plots and report for a stored run ID, then exit")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if *list {
		if err := listRuns(*dbPath); err != nil {
			log.Fatalf("list runs: %v", err)
		}
		return
	}
	if *reportID != "" {
		if err := reportStoredRun(*dbPath, *reportID, *outDir); err != nil {
			log.Fatalf("report run %s: %v", *reportID, err)
		}
		return
	}

	sf := defaultScenario()
	if *scenarioPath != "" {
		b, err := os.ReadFile(*scenarioPath)
		if err != nil {
			log.Fatalf("read scenario: %v", err)
		}
		if err := json.Unmarshal(b, &sf); err != nil {
			log.Fatalf("parse scenario: %v", err)
		}
	}

	cfg := fusion.DefaultConfig()
	if *tuningPath != "" {
		b, err := os.ReadFile(*tuningPath)
		if err != nil {
			log.Fatalf("read tuning: %v", err)
		}
		var ov fusion.Overlay
		if err := json.Unmarshal(b, &ov); err != nil {
			log.Fatalf("parse tuning: %v", err)
		}
		cfg = ov.Apply(cfg)
	}
	if *attitude != "" {
		cfg.AttitudeMode = fusion.AttitudeMode(*attitude)
	}
	if *precision != "" {
		cfg.Precision = fusion.Precision(*precision)
	}

	params := sf.params()
	log.Printf("generating scenario: duration=%.1fs imu_dt=%.3fs gps_dt=%.3fs seed=%d",
		params.Duration, params.IMUDt, params.GPSDt, params.Seed)
	imu, gps, truth := synth.Generate(params)

	run, err := fusion.NewRun(imu, gps, cfg)
	if err != nil {
		log.Fatalf("initialize run: %v", err)
	}
	res, err := run.Execute()
	if err != nil {
		// A failed run still carries the history up to the failure.
		partial := run.Partial()
		log.Printf("run aborted after %d track rows: %v", partial.Track.Len(), err)
		os.Exit(1)
	}

	logSummary(res, &truth)

	db, err := navdb.Open(*dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	runID, err := db.SaveRun(*label, cfg, res)
	if err != nil {
		log.Fatalf("save run: %v", err)
	}
	log.Printf("saved run %s to %s", runID, *dbPath)

	pl, err := monitor.NewPlotter(*outDir)
	if err != nil {
		log.Fatalf("plot setup: %v", err)
	}
	n, err := pl.PlotAll(res)
	if err != nil {
		log.Fatalf("plots: %v", err)
	}
	reportPath := filepath.Join(*outDir, "report.html")
	if err := monitor.WriteReport(reportPath, runID, res); err != nil {
		log.Fatalf("report: %v", err)
	}
	log.Printf("wrote %d plots and %s", n, reportPath)
}

// logSummary prints the final navigation error against the generating truth.
func logSummary(res *fusion.Result, truth *synth.Truth) {
	last := res.Track.Len() - 1
	ti := len(truth.Time) - 1

	scale := filter.PositionScale(truth.Pos[ti].Lat, truth.Pos[ti].Alt)
	dn := (res.Track.Lat[last] - truth.Pos[ti].Lat) * scale[0]
	de := (res.Track.Lon[last] - truth.Pos[ti].Lon) * scale[1]
	dd := truth.Pos[ti].Alt - res.Track.Alt[last]

	dv := res.Track.Vel[last].Sub(truth.Vel[ti])

	log.Printf("consumed %d IMU samples over %d GPS epochs",
		res.SamplesConsumed, res.Diagnostics.Len())
	log.Printf("final position error (NED): %.3f %.3f %.3f m", dn, de, dd)
	log.Printf("final velocity error (NED): %.4f %.4f %.4f m/s", dv[0], dv[1], dv[2])
}

// reportStoredRun reloads a persisted run and regenerates its plots and HTML
// report without re-running the filter.
func reportStoredRun(dbPath, runID, outDir string) error {
	db, err := navdb.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	rec, err := db.GetRun(runID)
	if err != nil {
		return err
	}
	track, err := db.LoadTrack(runID)
	if err != nil {
		return err
	}
	diags, err := db.LoadDiagnostics(runID)
	if err != nil {
		return err
	}
	res := &fusion.Result{
		Track:           *track,
		Diagnostics:     *diags,
		SamplesConsumed: rec.SamplesConsumed,
	}

	pl, err := monitor.NewPlotter(outDir)
	if err != nil {
		return err
	}
	n, err := pl.PlotAll(res)
	if err != nil {
		return err
	}
	reportPath := filepath.Join(outDir, "report.html")
	if err := monitor.WriteReport(reportPath, runID, res); err != nil {
		return err
	}
	log.Printf("rewrote %d plots and %s from stored run %s (%s)", n, reportPath, runID, rec.Label)
	return nil
}

// listRuns prints the stored run history, newest first.
func listRuns(dbPath string) error {
	db, err := navdb.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	recs, err := db.ListRuns()
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("no runs stored")
		return nil
	}
	for _, r := range recs {
		fmt.Printf("%s  %-24s  att=%-10s prec=%-6s imu=%d gps=%d consumed=%d\n",
			r.RunID, r.Label, r.AttitudeMode, r.PrecisionMode,
			r.IMUSamples, r.GPSEpochs, r.SamplesConsumed)
	}
	return nil
}
