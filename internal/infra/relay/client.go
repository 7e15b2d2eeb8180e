// Package relay reads delivered payloads from MEV-boost relay data APIs.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/vietddude/preconf-ingester/internal/core/domain"
	"github.com/vietddude/preconf-ingester/internal/infra/rpc/provider"
	"github.com/vietddude/preconf-ingester/internal/infra/rpc/routing"
	"golang.org/x/sync/errgroup"
)

const payloadsPath = "/relay/v1/data/bidtraces/proposer_payload_delivered"

// Endpoint is one relay's data API.
type Endpoint struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// DefaultEndpoints are used for a network with no configured relays.
var DefaultEndpoints = map[string][]Endpoint{
	"holesky": {
		{Name: "flashbots", URL: "https://boost-relay-holesky.flashbots.net"},
		{Name: "titan", URL: "https://holesky.titanrelay.xyz"},
		{Name: "aestus", URL: "https://holesky.aestus.live"},
		{Name: "bloxroute", URL: "https://bloxroute.holesky.blxrbdn.com"},
		{Name: "eden", URL: "https://relay-holesky.edennetwork.io"},
	},
}

type payloadTrace struct {
	Slot                 domain.Quantity `json:"slot"`
	BlockNumber          domain.Quantity `json:"block_number"`
	BlockHash            string          `json:"block_hash"`
	BuilderPubkey        string          `json:"builder_pubkey"`
	ProposerPubkey       string          `json:"proposer_pubkey"`
	ProposerFeeRecipient string          `json:"proposer_fee_recipient"`
	Value                domain.Wei      `json:"value"`
	GasUsed              domain.Quantity `json:"gas_used"`
	GasLimit             domain.Quantity `json:"gas_limit"`
	NumTx                domain.Quantity `json:"num_tx"`
}

// Client fetches proposer payloads from every relay of a network.
type Client struct {
	networks map[string][]provider.RESTProvider
	limit    int
	retry    routing.RetryConfig
	log      *slog.Logger
}

// NewClient builds REST providers for each relay. limit is the page size
// requested from every relay.
func NewClient(networks map[string][]Endpoint, limit int, timeout time.Duration, retry routing.RetryConfig) *Client {
	c := &Client{
		networks: make(map[string][]provider.RESTProvider, len(networks)),
		limit:    limit,
		retry:    retry,
		log:      slog.With("component", "relay"),
	}
	for network, endpoints := range networks {
		for _, e := range endpoints {
			c.networks[network] = append(c.networks[network], provider.NewHTTPProvider(e.Name, e.URL, timeout))
		}
	}
	return c
}

// ProposerPayloads fetches the most recent delivered payloads from every
// relay of network concurrently. Any relay failing fails the whole call.
func (c *Client) ProposerPayloads(ctx context.Context, network string) ([]domain.RelayPayload, error) {
	relays, ok := c.networks[network]
	if !ok || len(relays) == 0 {
		return nil, fmt.Errorf("no relays configured for network %q", network)
	}

	results := make([][]domain.RelayPayload, len(relays))
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range relays {
		g.Go(func() error {
			payloads, err := c.fetch(gctx, r)
			if err != nil {
				return fmt.Errorf("relay %s: %w", r.GetName(), err)
			}
			results[i] = payloads
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []domain.RelayPayload
	for _, r := range results {
		out = append(out, r...)
	}
	c.log.Debug("Fetched proposer payloads", "network", network, "relays", len(relays), "payloads", len(out))
	return out, nil
}

func (c *Client) fetch(ctx context.Context, r provider.RESTProvider) ([]domain.RelayPayload, error) {
	query := url.Values{}
	if c.limit > 0 {
		query.Set("limit", strconv.Itoa(c.limit))
	}

	var body []byte
	err := routing.Do(ctx, c.retry, func(ctx context.Context) error {
		var err error
		body, err = r.Get(ctx, payloadsPath, query)
		return err
	})
	if err != nil {
		return nil, err
	}

	var traces []payloadTrace
	if err := json.Unmarshal(body, &traces); err != nil {
		return nil, fmt.Errorf("decode payloads: %w", err)
	}

	out := make([]domain.RelayPayload, 0, len(traces))
	for _, t := range traces {
		out = append(out, domain.RelayPayload{
			Relay:                r.GetName(),
			Slot:                 t.Slot.Int64(),
			BlockNumber:          t.BlockNumber.Int64(),
			BlockHash:            domain.NormalizeHash(t.BlockHash),
			BuilderPubkey:        t.BuilderPubkey,
			ProposerPubkey:       t.ProposerPubkey,
			ProposerFeeRecipient: t.ProposerFeeRecipient,
			Value:                t.Value,
			GasUsed:              t.GasUsed.Int64(),
			GasLimit:             t.GasLimit.Int64(),
			NumTx:                t.NumTx.Int64(),
		})
	}
	return out, nil
}
