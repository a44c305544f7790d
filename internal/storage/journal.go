package storage

import (
	"database/sql"
	_ "embed"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pulkyeet/flash-arb/internal/arbitrage"
)

//go:embed schema.sql
var schema string

// Journal records every arbitrage attempt, settled or aborted.
type Journal struct {
	db *sql.DB
}

func OpenJournal(dbPath string) (*Journal, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal db: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise schema: %w", err)
	}

	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// RunRecord is one row of the runs table. Amounts are base-10 strings of
// the asset's smallest unit.
type RunRecord struct {
	ID           int64
	CreatedAt    time.Time
	Asset        string
	Intermediate string
	SellPool     string
	BuyPool      string
	Orientation  string
	Borrowed     string
	Premium      string
	Proceeds     string
	Profit       string
	SpreadPct    float64
	Stage        string
	Reached      string
	Success      bool
	RevertReason string
	BlockNumber  uint64
	GasUsed      uint64
}

// NewRunRecord flattens a run for storage.
func NewRunRecord(run *arbitrage.Run, orientation arbitrage.Orientation, at time.Time) RunRecord {
	rec := RunRecord{
		CreatedAt:    at,
		Asset:        run.Asset.Hex(),
		Orientation:  orientation.String(),
		Borrowed:     amount(run.Borrowed),
		Premium:      amount(run.Premium),
		Proceeds:     amount(run.Proceeds),
		Profit:       amount(run.Profit),
		SpreadPct:    run.SpreadPct,
		Stage:        run.Stage.String(),
		Reached:      run.Reached.String(),
		Success:      run.Succeeded(),
		RevertReason: run.RevertReason,
	}
	if run.Intermediate != (common.Address{}) {
		rec.Intermediate = run.Intermediate.Hex()
	}
	if run.SellPool.Address != (common.Address{}) {
		rec.SellPool = run.SellPool.Address.Hex()
		rec.BuyPool = run.BuyPool.Address.Hex()
	}
	if run.Receipt != nil {
		rec.BlockNumber = run.Receipt.Block
		rec.GasUsed = run.Receipt.GasUsed
	}
	return rec
}

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// RecordRun inserts rec and returns its id.
func (j *Journal) RecordRun(rec RunRecord) (int64, error) {
	res, err := j.db.Exec(`
		INSERT INTO runs
		(created_at, asset, intermediate, sell_pool, buy_pool, orientation,
		 borrowed, premium, proceeds, profit, spread_pct, stage, reached,
		 success, revert_reason, block_number, gas_used)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.CreatedAt.UnixMilli(),
		rec.Asset,
		rec.Intermediate,
		rec.SellPool,
		rec.BuyPool,
		rec.Orientation,
		rec.Borrowed,
		rec.Premium,
		rec.Proceeds,
		rec.Profit,
		rec.SpreadPct,
		rec.Stage,
		rec.Reached,
		rec.Success,
		rec.RevertReason,
		rec.BlockNumber,
		rec.GasUsed,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return res.LastInsertId()
}

// ListRuns returns the most recent runs first; limit <= 0 returns all.
func (j *Journal) ListRuns(limit int) ([]RunRecord, error) {
	query := `
		SELECT id, created_at, asset, intermediate, sell_pool, buy_pool, orientation,
		       borrowed, premium, proceeds, profit, spread_pct, stage, reached,
		       success, revert_reason, block_number, gas_used
		FROM runs
		ORDER BY id DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var rec RunRecord
		var createdAt int64
		if err := rows.Scan(
			&rec.ID, &createdAt, &rec.Asset, &rec.Intermediate, &rec.SellPool, &rec.BuyPool, &rec.Orientation,
			&rec.Borrowed, &rec.Premium, &rec.Proceeds, &rec.Profit, &rec.SpreadPct, &rec.Stage, &rec.Reached,
			&rec.Success, &rec.RevertReason, &rec.BlockNumber, &rec.GasUsed,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.CreatedAt = time.UnixMilli(createdAt)
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

// stats for the history command

func (j *Journal) GetStats() (map[string]int64, error) {
	stats := make(map[string]int64)

	var count int64
	if err := j.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count); err != nil {
		return nil, err
	}
	stats["total_runs"] = count

	if err := j.db.QueryRow("SELECT COUNT(*) FROM runs WHERE success = 1").Scan(&count); err != nil {
		return nil, err
	}
	stats["settled_runs"] = count
	stats["aborted_runs"] = stats["total_runs"] - count

	return stats, nil
}

// TotalProfit sums the profit of settled runs.
func (j *Journal) TotalProfit() (*big.Int, error) {
	rows, err := j.db.Query("SELECT profit FROM runs WHERE success = 1")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	total := new(big.Int)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("bad profit value %q", s)
		}
		total.Add(total, v)
	}
	return total, rows.Err()
}
