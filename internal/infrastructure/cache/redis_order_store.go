package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/marketrelay/backend/internal/domain/channel"
	"github.com/redis/go-redis/v9"
)

// DefaultOrderStorePrefix namespaces sandbox order lists in Redis
const DefaultOrderStorePrefix = "marketrelay:sandbox:orders:"

// RedisOrderStore keeps sandbox channel orders in a Redis list per account,
// so seeded orders survive restarts and are visible to every instance.
type RedisOrderStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisOrderStore creates an order store on an existing client
func NewRedisOrderStore(client redis.UniversalClient, keyPrefix string) *RedisOrderStore {
	if keyPrefix == "" {
		keyPrefix = DefaultOrderStorePrefix
	}
	return &RedisOrderStore{client: client, keyPrefix: keyPrefix}
}

// Append pushes orders onto the account's list
func (s *RedisOrderStore) Append(ctx context.Context, accountKey string, orders ...channel.ExternalOrder) error {
	if len(orders) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(orders))
	for _, o := range orders {
		data, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("marshal sandbox order %s: %w", o.ExternalOrderID, err)
		}
		values = append(values, data)
	}
	if err := s.client.RPush(ctx, s.keyPrefix+accountKey, values...).Err(); err != nil {
		return fmt.Errorf("append sandbox orders: %w", err)
	}
	return nil
}

// List returns every stored order for the account in insertion order
func (s *RedisOrderStore) List(ctx context.Context, accountKey string) ([]channel.ExternalOrder, error) {
	raw, err := s.client.LRange(ctx, s.keyPrefix+accountKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list sandbox orders: %w", err)
	}
	orders := make([]channel.ExternalOrder, 0, len(raw))
	for _, item := range raw {
		var o channel.ExternalOrder
		if err := json.Unmarshal([]byte(item), &o); err != nil {
			return nil, fmt.Errorf("unmarshal sandbox order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// Clear deletes the account's list
func (s *RedisOrderStore) Clear(ctx context.Context, accountKey string) error {
	if err := s.client.Del(ctx, s.keyPrefix+accountKey).Err(); err != nil {
		return fmt.Errorf("clear sandbox orders: %w", err)
	}
	return nil
}

var _ channel.OrderStore = (*RedisOrderStore)(nil)
