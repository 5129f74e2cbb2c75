// Package sinkstore is the reference telemetry collector backing store: a
// sqlite database holding one row per flushed engine snapshot, with embedded
// schema migrations and the admin/debug surface of the sink server.
package sinkstore

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kestrel-sense/driverwatch/internal/monitoring"
	"github.com/kestrel-sense/driverwatch/internal/sink"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Store struct {
	*sql.DB
}

// Open opens (or creates) the sqlite database at path without touching the
// schema; call Migrate before first use.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	return &Store{db}, nil
}

// Migrate applies all pending schema migrations.
func (s *Store) Migrate() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	// The migrate instance is not closed: closing it would close the shared
	// DB connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateDown rolls back the most recent migration.
func (s *Store) MigrateDown() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// SchemaVersion returns the current migration version and dirty state.
// A database with no applied migrations reports 0, false.
func (s *Store) SchemaVersion() (version uint, dirty bool, err error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("loading embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("creating sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("creating migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	return m, nil
}

// migrateLogger routes migrate output through the package logger.
type migrateLogger struct{}

func (*migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("sinkstore migrate: "+format, v...)
}

func (*migrateLogger) Verbose() bool { return false }

// StoredRecord is one telemetry row as read back from the store.
type StoredRecord struct {
	ID         string      `json:"id"`
	ReceivedAt string      `json:"receivedAt"`
	Record     sink.Record `json:"record"`
}

// Insert stores one telemetry record and returns its assigned id.
func (s *Store) Insert(rec sink.Record) (string, error) {
	if rec.DriverID == "" {
		return "", fmt.Errorf("record has no driverId")
	}
	if rec.Timestamp == "" {
		return "", fmt.Errorf("record has no timestamp")
	}
	id := uuid.NewString()
	_, err := s.Exec(`
		INSERT INTO telemetry_logs (
			id, driver_id, drowsiness, emotion, eye_aspect_ratio,
			mouth_aspect_ratio, head_pose, blink_detected,
			micro_expression, speech_volume, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, rec.DriverID, rec.Drowsiness, rec.Emotion, rec.EyeAspectRatio,
		rec.MouthAspectRatio, rec.HeadPose, rec.BlinkDetected,
		rec.MicroExpression, rec.SpeechVolume, rec.Timestamp,
	)
	if err != nil {
		return "", fmt.Errorf("inserting telemetry record: %w", err)
	}
	return id, nil
}

// Records returns the most recent rows, newest first, optionally filtered by
// driver. Limit is capped at 500.
func (s *Store) Records(driverID string, limit int) ([]StoredRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	query := `
		SELECT id, driver_id, drowsiness, emotion, eye_aspect_ratio,
		       mouth_aspect_ratio, head_pose, blink_detected,
		       micro_expression, speech_volume, recorded_at, received_at
		FROM telemetry_logs`
	args := []interface{}{}
	if driverID != "" {
		query += " WHERE driver_id = ?"
		args = append(args, driverID)
	}
	query += " ORDER BY recorded_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredRecord
	for rows.Next() {
		var sr StoredRecord
		var drowsiness, earVal, marVal, volume sql.NullFloat64
		var emotion, headPose, micro sql.NullString
		var blink sql.NullBool
		if err := rows.Scan(
			&sr.ID, &sr.Record.DriverID, &drowsiness, &emotion, &earVal,
			&marVal, &headPose, &blink, &micro, &volume,
			&sr.Record.Timestamp, &sr.ReceivedAt,
		); err != nil {
			return nil, err
		}
		if drowsiness.Valid {
			sr.Record.Drowsiness = sink.Float64(drowsiness.Float64)
		}
		if emotion.Valid {
			sr.Record.Emotion = sink.String(emotion.String)
		}
		if earVal.Valid {
			sr.Record.EyeAspectRatio = sink.Float64(earVal.Float64)
		}
		if marVal.Valid {
			sr.Record.MouthAspectRatio = sink.Float64(marVal.Float64)
		}
		if headPose.Valid {
			sr.Record.HeadPose = sink.String(headPose.String)
		}
		if blink.Valid {
			sr.Record.BlinkDetected = sink.Bool(blink.Bool)
		}
		if micro.Valid {
			sr.Record.MicroExpression = sink.String(micro.String)
		}
		if volume.Valid {
			sr.Record.SpeechVolume = sink.Float64(volume.Float64)
		}
		out = append(out, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DriverRollup summarises recent telemetry per driver.
type DriverRollup struct {
	DriverID       string  `json:"driverId"`
	Records        int     `json:"records"`
	AvgDrowsiness  float64 `json:"avgDrowsiness"`
	MaxDrowsiness  float64 `json:"maxDrowsiness"`
	DrowsyFraction float64 `json:"drowsyFraction"`
	Blinks         int     `json:"blinks"`
}

// Rollup aggregates the trailing N days of telemetry per driver, newest
// drivers first by record count.
func (s *Store) Rollup(days int) ([]DriverRollup, error) {
	if days < 1 {
		days = 1
	}
	rows, err := s.Query(`
		SELECT driver_id,
		       COUNT(*),
		       COALESCE(AVG(drowsiness), 0),
		       COALESCE(MAX(drowsiness), 0),
		       COALESCE(AVG(CASE WHEN drowsiness > 0.5 THEN 1.0 ELSE 0.0 END), 0),
		       COALESCE(SUM(CASE WHEN blink_detected THEN 1 ELSE 0 END), 0)
		FROM telemetry_logs
		WHERE datetime(recorded_at) >= datetime('now', ?)
		GROUP BY driver_id
		ORDER BY COUNT(*) DESC`,
		fmt.Sprintf("-%d days", days),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DriverRollup
	for rows.Next() {
		var r DriverRollup
		if err := rows.Scan(&r.DriverID, &r.Records, &r.AvgDrowsiness,
			&r.MaxDrowsiness, &r.DrowsyFraction, &r.Blinks); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
