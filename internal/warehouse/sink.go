// Package warehouse stores run records in ClickHouse for long-term analysis.
package warehouse

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ethpandaops/apiwatch/internal/config"
	"github.com/ethpandaops/apiwatch/internal/report"
	"github.com/golang-migrate/migrate/v4"
	chmigrate "github.com/golang-migrate/migrate/v4/database/clickhouse"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var errNotStarted = errors.New("warehouse sink not started")

const (
	dialTimeout      = 30 * time.Second
	maxExecutionTime = 60
	maxOpenConns     = 5
)

const (
	insertRunSQL = `INSERT INTO api_test_runs (
		run_id, timestamp, environment, duration_ms, success_rate, iterations,
		requests_total, requests_failed, assertions_total, assertions_failed,
		test_scripts_total, test_scripts_failed, failures, avg_response_time_ms
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertExecutionSQL = `INSERT INTO api_test_executions (
		run_id, timestamp, environment, position, name, response_code,
		response_time_ms, assertions_total, assertions_failed
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

// Sink writes run records to ClickHouse.
type Sink struct {
	url      string
	database string
	log      logrus.FieldLogger

	conn *sql.DB
}

// NewSink creates a sink for the configured ClickHouse URL.
func NewSink(log logrus.FieldLogger, cfg config.ClickHouseConfig) *Sink {
	database := cfg.Database
	if database == "" {
		database = "default"
	}

	return &Sink{
		url:      cfg.URL,
		database: database,
		log:      log.WithField("component", "warehouse_sink"),
	}
}

// Start opens and verifies the connection. Options missing from the DSN get
// the same defaults as the native client: LZ4 compression, a 30s dial timeout
// and a 60s max_execution_time.
func (s *Sink) Start(ctx context.Context) error {
	s.log.Debug("starting warehouse sink")

	opts, err := clickhouse.ParseDSN(s.url)
	if err != nil {
		return fmt.Errorf("parsing clickhouse url: %w", err)
	}

	applyDefaults(opts, s.database)
	s.database = opts.Auth.Database

	conn := clickhouse.OpenDB(opts)
	conn.SetMaxOpenConns(maxOpenConns)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return fmt.Errorf("pinging clickhouse: %w", err)
	}

	s.conn = conn

	s.log.WithFields(logrus.Fields{
		"addr":     opts.Addr,
		"database": s.database,
	}).Info("warehouse sink started")

	return nil
}

func applyDefaults(opts *clickhouse.Options, database string) {
	if opts.Auth.Database == "" || opts.Auth.Database == "default" {
		opts.Auth.Database = database
	}

	if opts.DialTimeout == 0 {
		opts.DialTimeout = dialTimeout
	}

	if opts.Compression == nil {
		opts.Compression = &clickhouse.Compression{Method: clickhouse.CompressionLZ4}
	}

	if opts.Settings == nil {
		opts.Settings = clickhouse.Settings{}
	}

	if _, ok := opts.Settings["max_execution_time"]; !ok {
		opts.Settings["max_execution_time"] = maxExecutionTime
	}
}

// Stop closes the connection.
func (s *Sink) Stop() error {
	if s.conn == nil {
		return nil
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("closing clickhouse connection: %w", err)
	}

	s.conn = nil

	return nil
}

// Migrate applies the embedded schema migrations.
func (s *Sink) Migrate(ctx context.Context) error {
	if s.conn == nil {
		return errNotStarted
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating source driver: %w", err)
	}

	dbDriver, err := chmigrate.WithInstance(s.conn, &chmigrate.Config{
		DatabaseName:          s.database,
		MigrationsTable:       config.MigrationsTable,
		MigrationsTableEngine: "MergeTree",
		MultiStatementEnabled: true,
		MultiStatementMaxSize: 1024 * 1024,
	})
	if err != nil {
		return fmt.Errorf("creating clickhouse driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, s.database, dbDriver)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			done <- fmt.Errorf("running migrations: %w", err)
			return
		}
		done <- nil
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("migration canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return err
		}
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("reading migration version: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"version": version,
		"dirty":   dirty,
	}).Info("warehouse schema up to date")

	return nil
}

// Insert stores the run summary and its per-request executions.
func (s *Sink) Insert(ctx context.Context, rec *report.Record, environment string) error {
	if s.conn == nil {
		return errNotStarted
	}

	runID, err := NewRunID()
	if err != nil {
		return err
	}

	run := NewRunRow(runID, environment, rec)

	if _, err := s.conn.ExecContext(ctx, insertRunSQL,
		run.RunID, run.Timestamp, run.Environment, run.DurationMS, run.SuccessRate, run.Iterations,
		run.RequestsTotal, run.RequestsFailed, run.AssertionsTotal, run.AssertionsFailed,
		run.TestScriptsTotal, run.TestScriptsFailed, run.Failures, run.AvgResponseTimeMS,
	); err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	executions := NewExecutionRows(runID, environment, rec)
	if len(executions) > 0 {
		if err := s.insertExecutions(ctx, executions); err != nil {
			return err
		}
	}

	s.log.WithFields(logrus.Fields{
		"run_id":     runID,
		"executions": len(executions),
	}).Info("stored run in warehouse")

	return nil
}

// insertExecutions sends all rows as one batch: clickhouse-go flushes a
// prepared statement inside a transaction on commit.
func (s *Sink) insertExecutions(ctx context.Context, rows []ExecutionRow) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning execution batch: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertExecutionSQL)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("preparing execution batch: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx,
			row.RunID, row.Timestamp, row.Environment, row.Position, row.Name, row.ResponseCode,
			row.ResponseTimeMS, row.AssertionsTotal, row.AssertionsFailed,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("appending execution row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing execution batch: %w", err)
	}

	return nil
}
