package lidardb

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/velodyne.report/internal/lidar"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrSessionNotFound is returned when a session ID has no row.
var ErrSessionNotFound = errors.New("lidar session not found")

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// LidarDB stores capture sessions and sampled point batches in SQLite.
type LidarDB struct {
	*sql.DB
	path string
}

// Open opens (or creates) the database at path and applies pending
// migrations.
func Open(path string) (*LidarDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps per-connection PRAGMAs in force.
	db.SetMaxOpenConns(1)

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	ldb := &LidarDB{DB: db, path: path}
	if err := ldb.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	lidar.Diagf("lidar database %s ready", path)
	return ldb, nil
}

// Path returns the file the database was opened from.
func (ldb *LidarDB) Path() string { return ldb.path }

// MigrateUp applies all embedded migrations.
func (ldb *LidarDB) MigrateUp() error {
	m, err := ldb.newMigrate()
	if err != nil {
		return err
	}
	// Note: m is not closed because that would close the underlying DB connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the applied schema version, or 0 if none.
func (ldb *LidarDB) MigrateVersion() (version uint, dirty bool, err error) {
	m, err := ldb.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (ldb *LidarDB) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(ldb.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	lidar.Diagf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

// Session is one run of the decoder against a sensor.
type Session struct {
	SessionID        string
	FrameID          string
	CalibrationPath  string
	LasersCalibrated int
	Started          time.Time
	Ended            *time.Time
}

// StartSession records a new session and returns its ID.
func (ldb *LidarDB) StartSession(frameID, calibrationPath string, lasersCalibrated int, started time.Time) (string, error) {
	id := uuid.New().String()
	_, err := ldb.Exec(
		`INSERT INTO lidar_sessions (session_id, frame_id, calibration_path, lasers_calibrated, started_unix_nanos)
		 VALUES (?, ?, ?, ?, ?)`,
		id, frameID, calibrationPath, lasersCalibrated, started.UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert session: %w", err)
	}
	return id, nil
}

// EndSession stamps the session's end time.
func (ldb *LidarDB) EndSession(sessionID string, ended time.Time) error {
	res, err := ldb.Exec(`UPDATE lidar_sessions SET ended_unix_nanos = ? WHERE session_id = ?`, ended.UnixNano(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// GetSession loads one session.
func (ldb *LidarDB) GetSession(sessionID string) (*Session, error) {
	var (
		s       Session
		started int64
		ended   sql.NullInt64
	)
	err := ldb.QueryRow(
		`SELECT session_id, frame_id, calibration_path, lasers_calibrated, started_unix_nanos, ended_unix_nanos
		 FROM lidar_sessions WHERE session_id = ?`, sessionID,
	).Scan(&s.SessionID, &s.FrameID, &s.CalibrationPath, &s.LasersCalibrated, &started, &ended)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Started = time.Unix(0, started)
	if ended.Valid {
		t := time.Unix(0, ended.Int64)
		s.Ended = &t
	}
	return &s, nil
}

// BatchRecord is the stored header of one point batch.
type BatchRecord struct {
	BatchID    int64     `json:"batch_id"`
	SessionID  string    `json:"session_id"`
	FrameID    string    `json:"frame_id"`
	Captured   time.Time `json:"captured"`
	PointCount int       `json:"point_count"`
	Revolution uint16    `json:"revolution"`
}

// RecordBatch stores a batch and its points in one transaction and
// returns the new batch ID.
func (ldb *LidarDB) RecordBatch(sessionID string, batch lidar.PointBatch) (int64, error) {
	tx, err := ldb.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var revolution uint16
	if !batch.Empty() {
		revolution = batch.Points[0].Revolution
	}
	res, err := tx.Exec(
		`INSERT INTO lidar_batches (session_id, frame_id, captured_unix_nanos, point_count, revolution)
		 VALUES (?, ?, ?, ?, ?)`,
		sessionID, batch.FrameID, batch.Timestamp.UnixNano(), batch.Len(), revolution,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert batch: %w", err)
	}
	batchID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare(
		`INSERT INTO lidar_points (batch_id, seq, laser_index, x, y, z, heading, intensity)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for i, p := range batch.Points {
		if _, err := stmt.Exec(batchID, i, p.LaserIndex, p.X, p.Y, p.Z, p.Heading, p.Intensity); err != nil {
			return 0, fmt.Errorf("failed to insert point %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return batchID, nil
}

// RecentBatches returns up to limit batch headers, newest first.
func (ldb *LidarDB) RecentBatches(limit int) ([]BatchRecord, error) {
	rows, err := ldb.Query(
		`SELECT batch_id, session_id, frame_id, captured_unix_nanos, point_count, revolution
		 FROM lidar_batches ORDER BY batch_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BatchRecord
	for rows.Next() {
		var (
			r        BatchRecord
			captured int64
		)
		if err := rows.Scan(&r.BatchID, &r.SessionID, &r.FrameID, &captured, &r.PointCount, &r.Revolution); err != nil {
			return nil, err
		}
		r.Captured = time.Unix(0, captured)
		out = append(out, r)
	}
	return out, rows.Err()
}

// BatchPoints returns the stored points of a batch in capture order.
func (ldb *LidarDB) BatchPoints(batchID int64) ([]lidar.Point3D, error) {
	var revolution uint16
	if err := ldb.QueryRow(`SELECT revolution FROM lidar_batches WHERE batch_id = ?`, batchID).Scan(&revolution); err != nil {
		return nil, err
	}

	rows, err := ldb.Query(
		`SELECT laser_index, x, y, z, heading, intensity
		 FROM lidar_points WHERE batch_id = ? ORDER BY seq`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []lidar.Point3D
	for rows.Next() {
		p := lidar.Point3D{Revolution: revolution}
		if err := rows.Scan(&p.LaserIndex, &p.X, &p.Y, &p.Z, &p.Heading, &p.Intensity); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}
