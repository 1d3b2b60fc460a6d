package power

import (
	"context"
	"fmt"
	"time"

	"github.com/givepower/powersyncx/pkg/db/clickhouse"
)

// RefreshRanking rebuilds the project ranking from the current balance cache
// and allocations, then swaps it in atomically. Readers always see either the
// previous complete ranking or the new one, never a mix: the rebuild happens
// in a staging table and EXCHANGE TABLES is an atomic metadata operation.
//
// Users without a cached balance contribute zero power via the LEFT JOIN, so
// a ranking refreshed before the first full sync still covers every project.
func (db *DB) RefreshRanking(ctx context.Context) error {
	truncate := fmt.Sprintf(`TRUNCATE TABLE "%s"."project_power_ranking_staging"`, db.Name)
	if err := db.Exec(ctx, truncate); err != nil {
		return fmt.Errorf("truncate ranking staging: %w", err)
	}

	build := fmt.Sprintf(`
		INSERT INTO "%s"."project_power_ranking_staging" (project_id, total_power, rank, computed_at)
		SELECT
			project_id,
			total_power,
			row_number() OVER (ORDER BY total_power DESC, project_id ASC) AS rank,
			? AS computed_at
		FROM (
			SELECT
				a.project_id AS project_id,
				sum(coalesce(b.balance, 0) * a.percentage / 100) AS total_power
			FROM (
				SELECT user_id, project_id, percentage
				FROM "%s"."allocations" FINAL
				WHERE percentage > 0
			) AS a
			LEFT JOIN (
				SELECT user_id, balance
				FROM "%s"."balance_cache" FINAL
			) AS b ON a.user_id = b.user_id
			GROUP BY a.project_id
		)
	`, db.Name, db.Name, db.Name)
	if err := db.Exec(ctx, build, time.Now()); err != nil {
		return fmt.Errorf("build ranking staging: %w", err)
	}

	swap := fmt.Sprintf(
		`EXCHANGE TABLES "%s"."project_power_ranking_staging" AND "%s"."project_power_ranking"`,
		db.Name, db.Name,
	)
	if err := db.Exec(ctx, swap); err != nil {
		return fmt.Errorf("swap ranking tables: %w", err)
	}
	return nil
}

// GetRanking returns the full project ranking, best rank first.
func (db *DB) GetRanking(ctx context.Context) ([]ProjectRank, error) {
	query := fmt.Sprintf(`
		SELECT project_id, total_power, rank
		FROM "%s"."project_power_ranking"
		ORDER BY rank ASC
	`, db.Name)

	rows, err := db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get ranking: %w", err)
	}
	defer rows.Close()

	var out []ProjectRank
	for rows.Next() {
		var r ProjectRank
		if err := rows.Scan(&r.ProjectID, &r.TotalPower, &r.Rank); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetProjectRank returns a single project's rank, or nil when the project is
// absent from the current ranking.
func (db *DB) GetProjectRank(ctx context.Context, projectID uint64) (*ProjectRank, error) {
	query := fmt.Sprintf(`
		SELECT project_id, total_power, rank
		FROM "%s"."project_power_ranking"
		WHERE project_id = ?
	`, db.Name)

	var r ProjectRank
	err := db.QueryRow(ctx, query, projectID).Scan(&r.ProjectID, &r.TotalPower, &r.Rank)
	if err != nil {
		if clickhouse.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get rank for project %d: %w", projectID, err)
	}
	return &r, nil
}
