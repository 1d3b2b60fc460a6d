package power

import (
	"context"
	"fmt"
	"strings"
)

// UpsertUser writes one user identity row. Owned by the CRUD layer; the
// engine only calls this from tests and seeding tools.
func (db *DB) UpsertUser(ctx context.Context, u *User) error {
	query := fmt.Sprintf(`INSERT INTO "%s"."users" (user_id, wallet_address) VALUES (?, ?)`, db.Name)
	return db.Exec(ctx, query, u.ID, strings.ToLower(u.WalletAddress))
}

// UpsertAllocation writes one allocation row. Owned by the CRUD layer, which
// enforces that a user's percentages sum to exactly 100.
func (db *DB) UpsertAllocation(ctx context.Context, a *Allocation) error {
	query := fmt.Sprintf(`INSERT INTO "%s"."allocations" (user_id, project_id, percentage) VALUES (?, ?, ?)`, db.Name)
	return db.Exec(ctx, query, a.UserID, a.ProjectID, a.Percentage)
}

// UsersByWallets maps lowercase wallet addresses onto user ids for users that
// have at least one allocation row. Addresses unknown to us are simply absent
// from the result; the caller logs and skips them.
func (db *DB) UsersByWallets(ctx context.Context, addresses []string) (map[string]uint64, error) {
	if len(addresses) == 0 {
		return map[string]uint64{}, nil
	}

	lowered := make([]string, len(addresses))
	for i, a := range addresses {
		lowered[i] = strings.ToLower(a)
	}

	query := fmt.Sprintf(`
		SELECT user_id, wallet_address
		FROM "%s"."users" FINAL
		WHERE wallet_address IN (?)
		  AND user_id IN (SELECT DISTINCT user_id FROM "%s"."allocations" FINAL WHERE percentage > 0)
	`, db.Name, db.Name)

	rows, err := db.Query(ctx, query, lowered)
	if err != nil {
		return nil, fmt.Errorf("users by wallets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]uint64, len(addresses))
	for rows.Next() {
		var id uint64
		var addr string
		if err := rows.Scan(&id, &addr); err != nil {
			return nil, err
		}
		out[addr] = id
	}
	return out, nil
}

// UsersWithAllocations pages through users holding a nonzero allocation,
// ordered by user id for stable pagination.
func (db *DB) UsersWithAllocations(ctx context.Context, limit, offset int) ([]User, error) {
	query := fmt.Sprintf(`
		SELECT user_id, wallet_address
		FROM "%s"."users" FINAL
		WHERE user_id IN (
			SELECT DISTINCT user_id FROM "%s"."allocations" FINAL WHERE percentage > 0
		)
		ORDER BY user_id
		LIMIT ? OFFSET ?
	`, db.Name, db.Name)

	var users []User
	if err := db.Select(ctx, &users, query, limit, offset); err != nil {
		return nil, fmt.Errorf("users with allocations: %w", err)
	}
	return users, nil
}

// UsersMissingBalance pages through users that have an allocation row but no
// balance cache entry yet. These are the gap-backfill candidates.
func (db *DB) UsersMissingBalance(ctx context.Context, limit, offset int) ([]User, error) {
	query := fmt.Sprintf(`
		SELECT user_id, wallet_address
		FROM "%s"."users" FINAL
		WHERE user_id IN (SELECT DISTINCT user_id FROM "%s"."allocations" FINAL WHERE percentage > 0)
		  AND user_id NOT IN (SELECT user_id FROM "%s"."balance_cache" FINAL)
		ORDER BY user_id
		LIMIT ? OFFSET ?
	`, db.Name, db.Name, db.Name)

	var users []User
	if err := db.Select(ctx, &users, query, limit, offset); err != nil {
		return nil, fmt.Errorf("users missing balance: %w", err)
	}
	return users, nil
}
