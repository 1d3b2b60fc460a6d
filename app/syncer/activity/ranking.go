package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/givepower/powersyncx/pkg/redis"
)

// RefreshRanking rebuilds the project power ranking from the current balance
// cache and allocations and swaps it in atomically. On success a best-effort
// event is published so API consumers can invalidate their views.
func (c *Context) RefreshRanking(ctx context.Context) error {
	if err := c.Store.RefreshRanking(ctx); err != nil {
		// The previously published ranking stays in place.
		return fmt.Errorf("refresh ranking: %w", err)
	}

	if c.RedisClient != nil {
		payload, _ := json.Marshal(map[string]interface{}{
			"refreshedAt": time.Now().UnixMilli(),
		})
		c.RedisClient.Publish(ctx, redis.ChannelRankingUpdated, payload)
	}
	return nil
}
