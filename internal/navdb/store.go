package navdb

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/navsense/fusion/internal/fusion"
	"github.com/navsense/fusion/internal/geodesy"
)

// RunRecord is the stored summary of a fusion run.
type RunRecord struct {
	RunID           string
	Label           string
	AttitudeMode    string
	PrecisionMode   string
	IMUSamples      int
	GPSEpochs       int
	SamplesConsumed int
}

// SaveRun writes a completed result and returns the generated run ID. The
// whole write is one transaction: a half-stored run is never visible.
func (db *DB) SaveRun(label string, cfg fusion.Config, res *fusion.Result) (string, error) {
	runID := uuid.NewString()

	tx, err := db.Begin()
	if err != nil {
		return "", fmt.Errorf("navdb: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (run_id, label, attitude_mode, precision_mode, imu_samples, gps_epochs, samples_consumed)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, label, string(cfg.AttitudeMode), string(cfg.Precision),
		res.Track.Len(), res.Diagnostics.Len(), res.SamplesConsumed,
	)
	if err != nil {
		return "", fmt.Errorf("navdb: insert run: %w", err)
	}

	epochStmt, err := tx.Prepare(`
		INSERT INTO epochs (run_id, epoch, time_s,
			innov_vn, innov_ve, innov_vd, innov_pn, innov_pe, innov_pd,
			cov_diag, err_state, biases)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("navdb: prepare epochs: %w", err)
	}
	defer epochStmt.Close()

	d := &res.Diagnostics
	for j := 0; j < d.Len(); j++ {
		cov, _ := json.Marshal(d.CovDiag[j])
		errState, _ := json.Marshal(d.ErrState[j])
		biases, _ := json.Marshal(d.Biases[j])
		z := d.Innovation[j]
		if _, err := epochStmt.Exec(runID, j, d.Time[j],
			z[0], z[1], z[2], z[3], z[4], z[5],
			string(cov), string(errState), string(biases)); err != nil {
			return "", fmt.Errorf("navdb: insert epoch %d: %w", j, err)
		}
	}

	trackStmt, err := tx.Prepare(`
		INSERT INTO track (run_id, sample, time_s, roll, pitch, yaw, vel_n, vel_e, vel_d, lat, lon, alt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("navdb: prepare track: %w", err)
	}
	defer trackStmt.Close()

	tr := &res.Track
	for i := 0; i < tr.Len(); i++ {
		if _, err := trackStmt.Exec(runID, i, tr.Time[i],
			tr.Roll[i], tr.Pitch[i], tr.Yaw[i],
			tr.Vel[i][0], tr.Vel[i][1], tr.Vel[i][2],
			tr.Lat[i], tr.Lon[i], tr.Alt[i]); err != nil {
			return "", fmt.Errorf("navdb: insert track row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("navdb: commit: %w", err)
	}
	return runID, nil
}

// GetRun loads a stored run summary.
func (db *DB) GetRun(runID string) (*RunRecord, error) {
	row := db.QueryRow(`
		SELECT run_id, label, attitude_mode, precision_mode, imu_samples, gps_epochs, samples_consumed
		FROM runs WHERE run_id = ?`, runID)
	var rec RunRecord
	err := row.Scan(&rec.RunID, &rec.Label, &rec.AttitudeMode, &rec.PrecisionMode,
		&rec.IMUSamples, &rec.GPSEpochs, &rec.SamplesConsumed)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("navdb: run %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("navdb: load run %s: %w", runID, err)
	}
	return &rec, nil
}

// ListRuns returns summaries of all stored runs, newest first.
func (db *DB) ListRuns() ([]RunRecord, error) {
	rows, err := db.Query(`
		SELECT run_id, label, attitude_mode, precision_mode, imu_samples, gps_epochs, samples_consumed
		FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("navdb: list runs: %w", err)
	}
	defer rows.Close()

	var recs []RunRecord
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(&rec.RunID, &rec.Label, &rec.AttitudeMode, &rec.PrecisionMode,
			&rec.IMUSamples, &rec.GPSEpochs, &rec.SamplesConsumed); err != nil {
			return nil, fmt.Errorf("navdb: scan run: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// LoadDiagnostics reads back the per-epoch histories of a stored run.
func (db *DB) LoadDiagnostics(runID string) (*fusion.Diagnostics, error) {
	rows, err := db.Query(`
		SELECT time_s, innov_vn, innov_ve, innov_vd, innov_pn, innov_pe, innov_pd,
			cov_diag, err_state, biases
		FROM epochs WHERE run_id = ? ORDER BY epoch`, runID)
	if err != nil {
		return nil, fmt.Errorf("navdb: load diagnostics: %w", err)
	}
	defer rows.Close()

	var d fusion.Diagnostics
	for rows.Next() {
		var t float64
		var z [6]float64
		var cov, errState, biases string
		if err := rows.Scan(&t, &z[0], &z[1], &z[2], &z[3], &z[4], &z[5], &cov, &errState, &biases); err != nil {
			return nil, fmt.Errorf("navdb: scan epoch: %w", err)
		}
		var covDiag [21]float64
		var errVec [21]float64
		var biasVec [12]float64
		if err := json.Unmarshal([]byte(cov), &covDiag); err != nil {
			return nil, fmt.Errorf("navdb: decode cov_diag: %w", err)
		}
		if err := json.Unmarshal([]byte(errState), &errVec); err != nil {
			return nil, fmt.Errorf("navdb: decode err_state: %w", err)
		}
		if err := json.Unmarshal([]byte(biases), &biasVec); err != nil {
			return nil, fmt.Errorf("navdb: decode biases: %w", err)
		}
		d.Time = append(d.Time, t)
		d.Innovation = append(d.Innovation, z)
		d.CovDiag = append(d.CovDiag, covDiag)
		d.ErrState = append(d.ErrState, errVec)
		d.Biases = append(d.Biases, biasVec)
	}
	return &d, rows.Err()
}

// LoadTrack reads back the INS-rate track of a stored run.
func (db *DB) LoadTrack(runID string) (*fusion.Track, error) {
	rows, err := db.Query(`
		SELECT time_s, roll, pitch, yaw, vel_n, vel_e, vel_d, lat, lon, alt
		FROM track WHERE run_id = ? ORDER BY sample`, runID)
	if err != nil {
		return nil, fmt.Errorf("navdb: load track: %w", err)
	}
	defer rows.Close()

	var tr fusion.Track
	for rows.Next() {
		var t, roll, pitch, yaw, vn, ve, vd, lat, lon, alt float64
		if err := rows.Scan(&t, &roll, &pitch, &yaw, &vn, &ve, &vd, &lat, &lon, &alt); err != nil {
			return nil, fmt.Errorf("navdb: scan track row: %w", err)
		}
		tr.Time = append(tr.Time, t)
		tr.Roll = append(tr.Roll, roll)
		tr.Pitch = append(tr.Pitch, pitch)
		tr.Yaw = append(tr.Yaw, yaw)
		tr.Vel = append(tr.Vel, geodesy.Vec3{vn, ve, vd})
		tr.Lat = append(tr.Lat, lat)
		tr.Lon = append(tr.Lon, lon)
		tr.Alt = append(tr.Alt, alt)
	}
	return &tr, rows.Err()
}
