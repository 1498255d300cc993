package recorder

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"TreasuryCycler/internal/model"
)

// SQLiteRecorder persists cycle history to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log zerolog.Logger) (*SQLiteRecorder, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL so dashboards can read while the bot writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cycles (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at      INTEGER NOT NULL,
			duration_ms     INTEGER,
			position        INTEGER,
			native_balance  TEXT,
			settlement      TEXT,
			converted       TEXT,
			carried_in      TEXT,
			total           TEXT,
			routed          TEXT,
			route_signature TEXT,
			carried_out     TEXT,
			closes          INTEGER,
			signal          TEXT,
			failed_stage    TEXT,
			error           TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_ts ON cycles(started_at)`,

		`CREATE TABLE IF NOT EXISTS orders (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle_id    INTEGER NOT NULL REFERENCES cycles(id),
			timestamp   INTEGER NOT NULL,
			order_id    TEXT,
			side        TEXT,
			status      TEXT,
			fill_price  REAL,
			simulated   INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_cycle ON orders(cycle_id)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordCycle stores a report and, when one was placed, its order.
func (r *SQLiteRecorder) RecordCycle(rep *model.CycleReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`INSERT INTO cycles
		(started_at, duration_ms, position, native_balance, settlement, converted, carried_in,
		 total, routed, route_signature, carried_out, closes, signal, failed_stage, error)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rep.StartedAt.Unix(), rep.FinishedAt.Sub(rep.StartedAt).Milliseconds(),
		int64(rep.Snapshot.CurrentPosition),
		rep.Snapshot.NativeBalance.String(), rep.Snapshot.SettlementBalance.String(),
		rep.Converted.String(), rep.CarriedIn.String(), rep.Total.String(),
		rep.Routed.String(), rep.RouteSignature, rep.CarriedOut.String(),
		rep.Closes, string(rep.Signal), rep.FailedStage, rep.Err,
	)
	if err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}

	if o := rep.Order; o != nil {
		cycleID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("cycle id: %w", err)
		}
		_, err = tx.Exec(`INSERT INTO orders
			(cycle_id, timestamp, order_id, side, status, fill_price, simulated)
			VALUES (?,?,?,?,?,?,?)`,
			cycleID, o.Timestamp.Unix(), o.OrderID, string(rep.OrderSide),
			string(o.Status), o.FillPrice, o.Simulated,
		)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
	}
	return tx.Commit()
}

// RecentCycles returns up to limit cycles, newest first.
func (r *SQLiteRecorder) RecentCycles(limit int) ([]CycleRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.Query(`SELECT c.id, c.started_at, c.duration_ms, c.position, c.converted,
			c.total, c.routed, c.carried_out, c.signal,
			COALESCE(o.side, ''), COALESCE(o.order_id, ''), c.failed_stage, c.error
		FROM cycles c LEFT JOIN orders o ON o.cycle_id = c.id
		ORDER BY c.id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer rows.Close()

	var out []CycleRecord
	for rows.Next() {
		var (
			rec                             CycleRecord
			startedAt, durationMs, position int64
			converted, total, routed, carry string
			signal, side                    string
		)
		if err := rows.Scan(&rec.ID, &startedAt, &durationMs, &position, &converted,
			&total, &routed, &carry, &signal, &side, &rec.OrderID, &rec.FailedStage, &rec.Err); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		rec.StartedAt = time.Unix(startedAt, 0)
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		rec.Position = uint64(position)
		rec.Converted = parseAmount(converted)
		rec.Total = parseAmount(total)
		rec.Routed = parseAmount(routed)
		rec.CarriedOut = parseAmount(carry)
		rec.Signal = model.Signal(signal)
		rec.OrderSide = model.Side(side)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func parseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}
