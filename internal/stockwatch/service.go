package stockwatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-storefront.git/internal/kafka"
	"github.com/ariefcatur/go-storefront.git/internal/orders"
	"github.com/ariefcatur/go-storefront.git/internal/redisx"
)

type StockReader interface {
	StockLevels(ctx context.Context, ids []string) (map[string]int, error)
}

// Service follows the order lifecycle topics and keeps the Redis stock-level
// cache warm, so the storefront cart endpoint rarely touches Postgres right
// after stock changed. It also shouts when a product runs low.
type Service struct {
	Catalog           StockReader
	Redis             *redis.Client
	ServiceName       string
	LowStockThreshold int
}

func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}

	// dedup by event id; redelivery after a consumer-group rebalance is normal
	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	if seen, _ := redisx.Exists(ctx, s.Redis, dkey); seen {
		return nil
	}
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	var items []orders.ItemQty
	switch env.EventType {
	case orders.EventOrderPlaced:
		p, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
		if err != nil {
			return err
		}
		items = p.Items
	case orders.EventOrderCancelled:
		p, err := kafkax.UnwrapPayload[orders.OrderCancelledPayload](env.Payload)
		if err != nil {
			return err
		}
		items = p.Items
	case orders.EventOrderDeleted:
		p, err := kafkax.UnwrapPayload[orders.OrderDeletedPayload](env.Payload)
		if err != nil {
			return err
		}
		if p.RefundFailed {
			log.Printf("order %s deleted with failed refund, counters need reconciliation", p.OrderID)
		}
		items = p.Items
	default:
		return nil
	}

	return s.refresh(ctx, productIDs(items))
}

func (s *Service) refresh(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	levels, err := s.Catalog.StockLevels(ctx, ids)
	if err != nil {
		return err
	}
	for id, n := range levels {
		key := fmt.Sprintf(redisx.KeyStockLevel, id)
		if err := s.Redis.Set(ctx, key, strconv.Itoa(n), redisx.TTLStockCache).Err(); err != nil {
			return err
		}
		if n <= s.LowStockThreshold {
			log.Printf("low stock: product %s has %d remaining", id, n)
		}
	}
	return nil
}

func productIDs(items []orders.ItemQty) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ProductID)
	}
	return out
}
