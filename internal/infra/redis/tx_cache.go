package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vietddude/preconf-ingester/internal/core/domain"
)

// cachedTx is the JSON form of a settlement transaction in Redis.
type cachedTx struct {
	Hash              string `json:"hash"`
	BlockNumber       int64  `json:"block_number"`
	Timestamp         int64  `json:"timestamp"`
	From              string `json:"from"`
	To                string `json:"to"`
	GasUsed           int64  `json:"gas_used"`
	EffectiveGasPrice string `json:"effective_gas_price"`
	Status            int64  `json:"status"`
}

func encodeTx(tx domain.SettlementTransaction) ([]byte, error) {
	return json.Marshal(cachedTx{
		Hash:              domain.NormalizeHash(tx.Hash),
		BlockNumber:       tx.BlockNumber.Int64(),
		Timestamp:         tx.Timestamp.Int64(),
		From:              tx.From,
		To:                tx.To,
		GasUsed:           tx.GasUsed.Int64(),
		EffectiveGasPrice: tx.EffectiveGasPrice.String(),
		Status:            tx.Status.Int64(),
	})
}

func decodeTx(data []byte) (domain.SettlementTransaction, error) {
	var c cachedTx
	if err := json.Unmarshal(data, &c); err != nil {
		return domain.SettlementTransaction{}, err
	}
	tx := domain.SettlementTransaction{
		Hash:        c.Hash,
		BlockNumber: domain.Quantity(c.BlockNumber),
		Timestamp:   domain.Quantity(c.Timestamp),
		From:        c.From,
		To:          c.To,
		GasUsed:     domain.Quantity(c.GasUsed),
		Status:      domain.Quantity(c.Status),
	}
	if err := json.Unmarshal([]byte(`"`+c.EffectiveGasPrice+`"`), &tx.EffectiveGasPrice); err != nil {
		return domain.SettlementTransaction{}, err
	}
	return tx, nil
}

// TxCache caches settlement transactions by hash. Settlement transactions
// are final once indexed, so entries only expire to bound memory.
type TxCache struct {
	client *Client
	ttl    time.Duration
}

// NewTxCache creates a cache with the given entry TTL (24h when zero).
func NewTxCache(client *Client, ttl time.Duration) *TxCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TxCache{client: client, ttl: ttl}
}

// Get returns cached transactions and the hashes that were not cached.
func (c *TxCache) Get(ctx context.Context, hashes []string) ([]domain.SettlementTransaction, []string, error) {
	if len(hashes) == 0 {
		return nil, nil, nil
	}
	keys := make([]string, len(hashes))
	for i, h := range hashes {
		keys[i] = txKey(c.client.prefix, domain.NormalizeHash(h))
	}

	vals, err := c.client.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, hashes, fmt.Errorf("mget failed: %w", err)
	}

	var (
		found   []domain.SettlementTransaction
		missing []string
	)
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			missing = append(missing, hashes[i])
			continue
		}
		tx, err := decodeTx([]byte(s))
		if err != nil {
			missing = append(missing, hashes[i])
			continue
		}
		found = append(found, tx)
	}
	return found, missing, nil
}

// Put stores transactions in one pipeline.
func (c *TxCache) Put(ctx context.Context, txs []domain.SettlementTransaction) error {
	if len(txs) == 0 {
		return nil
	}
	_, err := c.client.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, tx := range txs {
			data, err := encodeTx(tx)
			if err != nil {
				return err
			}
			pipe.Set(ctx, txKey(c.client.prefix, domain.NormalizeHash(tx.Hash)), data, c.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache put failed: %w", err)
	}
	return nil
}
