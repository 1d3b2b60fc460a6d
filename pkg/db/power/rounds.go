package power

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/givepower/powersyncx/pkg/db/clickhouse"
)

// InsertRoundSnapshot registers a round boundary. Re-inserting the same round
// is a no-op at read time: ReplacingMergeTree keeps the latest row per round.
func (db *DB) InsertRoundSnapshot(ctx context.Context, snap RoundSnapshot) error {
	query := fmt.Sprintf(`
		INSERT INTO "%s"."round_snapshots" (round, block_number, snapshot_time, synced, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, db.Name)
	synced := uint8(0)
	if snap.Synced {
		synced = 1
	}
	if err := db.Exec(ctx, query, snap.Round, snap.BlockNumber, snap.SnapshotTime, synced, time.Now()); err != nil {
		return fmt.Errorf("insert round snapshot %d: %w", snap.Round, err)
	}
	return nil
}

// ListRounds returns the most recently registered rounds, newest first.
func (db *DB) ListRounds(ctx context.Context, limit int) ([]RoundSnapshot, error) {
	query := fmt.Sprintf(`
		SELECT round, block_number, snapshot_time, synced
		FROM "%s"."round_snapshots" FINAL
		ORDER BY round DESC
		LIMIT ?
	`, db.Name)

	rows, err := db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}
	defer rows.Close()

	var out []RoundSnapshot
	for rows.Next() {
		var s RoundSnapshot
		var synced uint8
		if err := rows.Scan(&s.Round, &s.BlockNumber, &s.SnapshotTime, &synced); err != nil {
			return nil, err
		}
		s.Synced = synced == 1
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListUnsyncedSnapshots returns rounds whose power has not been materialized
// yet, oldest round first.
func (db *DB) ListUnsyncedSnapshots(ctx context.Context) ([]RoundSnapshot, error) {
	query := fmt.Sprintf(`
		SELECT round, block_number, snapshot_time, synced
		FROM "%s"."round_snapshots" FINAL
		WHERE synced = 0
		ORDER BY round ASC
	`, db.Name)

	rows, err := db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list unsynced rounds: %w", err)
	}
	defer rows.Close()

	var out []RoundSnapshot
	for rows.Next() {
		var s RoundSnapshot
		var synced uint8
		if err := rows.Scan(&s.Round, &s.BlockNumber, &s.SnapshotTime, &synced); err != nil {
			return nil, err
		}
		s.Synced = synced == 1
		out = append(out, s)
	}
	return out, rows.Err()
}

// MarkRoundSynced flips a round to synced. Callers must only do this after
// every power record for the round has been written.
func (db *DB) MarkRoundSynced(ctx context.Context, round uint64) error {
	read := fmt.Sprintf(`
		SELECT block_number, snapshot_time
		FROM "%s"."round_snapshots" FINAL
		WHERE round = ?
	`, db.Name)

	var blockNumber uint64
	var snapshotTime int64
	if err := db.QueryRow(ctx, read, round).Scan(&blockNumber, &snapshotTime); err != nil {
		if clickhouse.IsNoRows(err) {
			return fmt.Errorf("mark round %d synced: unknown round", round)
		}
		return fmt.Errorf("mark round %d synced: %w", round, err)
	}

	write := fmt.Sprintf(`
		INSERT INTO "%s"."round_snapshots" (round, block_number, snapshot_time, synced, updated_at)
		VALUES (?, ?, ?, 1, ?)
	`, db.Name)
	if err := db.Exec(ctx, write, round, blockNumber, snapshotTime, time.Now()); err != nil {
		return fmt.Errorf("mark round %d synced: %w", round, err)
	}
	return nil
}

// UpsertRoundPower writes a batch of per-user round power records. Records
// for an already-computed (round, user) pair replace rather than accumulate.
func (db *DB) UpsertRoundPower(ctx context.Context, records []RoundPowerRecord) error {
	if len(records) == 0 {
		return nil
	}

	query := fmt.Sprintf(`INSERT INTO "%s"."round_power" (round, user_id, average_power, computed_at) VALUES`, db.Name)
	batch, err := db.PrepareBatch(ctx, query)
	if err != nil {
		return err
	}
	defer func(batch driver.Batch) {
		_ = batch.Abort()
	}(batch)

	now := time.Now()
	for _, r := range records {
		if err := batch.Append(r.Round, r.UserID, r.AveragePower, now); err != nil {
			return err
		}
	}

	return batch.Send()
}

// GetRoundPower returns a user's power for a round, or nil when that round
// has not been computed for the user.
func (db *DB) GetRoundPower(ctx context.Context, userID, round uint64) (*RoundPowerRecord, error) {
	query := fmt.Sprintf(`
		SELECT round, user_id, average_power
		FROM "%s"."round_power" FINAL
		WHERE round = ? AND user_id = ?
	`, db.Name)

	var r RoundPowerRecord
	err := db.QueryRow(ctx, query, round, userID).Scan(&r.Round, &r.UserID, &r.AveragePower)
	if err != nil {
		if clickhouse.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get round power round=%d user=%d: %w", round, userID, err)
	}
	return &r, nil
}
