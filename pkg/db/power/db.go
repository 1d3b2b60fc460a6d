package power

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/givepower/powersyncx/pkg/db/clickhouse"
	"github.com/givepower/powersyncx/pkg/utils"
)

// DB is the ClickHouse-backed Store.
type DB struct {
	clickhouse.Client
	Name string
}

var _ Store = (*DB)(nil)

// New connects to ClickHouse, creates the engine database if missing and
// initializes every table.
func New(ctx context.Context, logger *zap.Logger, component string) (*DB, error) {
	dbName := clickhouse.SanitizeName(utils.Env("POWERSYNC_DB", "powersync"))

	client, err := clickhouse.New(ctx, logger.With(zap.String("db", dbName)), dbName,
		clickhouse.GetPoolConfigForComponent(component))
	if err != nil {
		return nil, err
	}

	db := &DB{Client: client, Name: dbName}
	if err := db.InitializeDB(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// DatabaseName returns the database name backing this store.
func (db *DB) DatabaseName() string { return db.Name }

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error { return db.Db.Ping(ctx) }

// InitializeDB creates the database and all engine tables.
// All DDL is idempotent; the syncer and query apps both call this at start.
func (db *DB) InitializeDB(ctx context.Context) error {
	if err := db.CreateDbIfNotExists(ctx, db.Name); err != nil {
		return fmt.Errorf("create database %s: %w", db.Name, err)
	}

	inits := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"users", db.initUsers},
		{"allocations", db.initAllocations},
		{"balance_cache", db.initBalanceCache},
		{"sync_cursor", db.initSyncCursor},
		{"round_snapshots", db.initRoundSnapshots},
		{"round_power", db.initRoundPower},
		{"ranking", db.initRanking},
		{"sync_runs", db.initSyncRuns},
	}
	for _, init := range inits {
		if err := init.fn(ctx); err != nil {
			return fmt.Errorf("init %s: %w", init.name, err)
		}
	}
	return nil
}

func (db *DB) initUsers(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."users" (
			user_id UInt64,
			wallet_address String CODEC(ZSTD(1)),
			updated_at DateTime64(6) DEFAULT now64(6)
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY user_id
	`, db.Name)
	return db.Exec(ctx, query)
}

func (db *DB) initAllocations(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."allocations" (
			user_id UInt64,
			project_id UInt64,
			percentage Float64,
			updated_at DateTime64(6) DEFAULT now64(6)
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY (user_id, project_id)
	`, db.Name)
	return db.Exec(ctx, query)
}

// initBalanceCache creates the balance cache. The ledger update instant is
// the ReplacingMergeTree version column, so the newest ledger state always
// wins regardless of local write order.
func (db *DB) initBalanceCache(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."balance_cache" (
			user_id UInt64,
			balance Float64,
			source_updated_at Int64 CODEC(DoubleDelta, LZ4),
			written_at DateTime64(6) DEFAULT now64(6)
		) ENGINE = ReplacingMergeTree(source_updated_at)
		ORDER BY user_id
	`, db.Name)
	return db.Exec(ctx, query)
}

func (db *DB) initSyncCursor(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."sync_cursor" (
			name String,
			value Int64,
			version UInt64,
			updated_at DateTime64(6) DEFAULT now64(6)
		) ENGINE = ReplacingMergeTree(version)
		ORDER BY name
	`, db.Name)
	return db.Exec(ctx, query)
}

func (db *DB) initRoundSnapshots(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."round_snapshots" (
			round UInt64,
			block_number UInt64,
			snapshot_time Int64,
			synced UInt8,
			updated_at DateTime64(6) DEFAULT now64(6)
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY round
	`, db.Name)
	return db.Exec(ctx, query)
}

func (db *DB) initRoundPower(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."round_power" (
			user_id UInt64,
			round UInt64,
			average_power Float64,
			computed_at DateTime64(6) DEFAULT now64(6)
		) ENGINE = ReplacingMergeTree(computed_at)
		ORDER BY (round, user_id)
	`, db.Name)
	return db.Exec(ctx, query)
}

// initRanking creates the published ranking table and its staging twin.
// The materializer builds into staging and atomically swaps the two, so
// readers never observe a partially-rebuilt ranking.
func (db *DB) initRanking(ctx context.Context) error {
	for _, table := range []string{"project_power_ranking", "project_power_ranking_staging"} {
		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS "%s"."%s" (
				project_id UInt64,
				total_power Float64,
				rank UInt64,
				computed_at DateTime64(3) DEFAULT now64(3)
			) ENGINE = MergeTree()
			ORDER BY rank
		`, db.Name, table)
		if err := db.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) initSyncRuns(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."sync_runs" (
			run_id String,
			started_at DateTime64(6),
			finished_at DateTime64(6),
			pages UInt32,
			records UInt64,
			cursor_before Int64,
			cursor_after Int64,
			duration_ms Float64
		) ENGINE = MergeTree()
		ORDER BY started_at
	`, db.Name)
	return db.Exec(ctx, query)
}
