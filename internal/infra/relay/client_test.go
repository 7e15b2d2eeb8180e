package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vietddude/preconf-ingester/internal/infra/rpc/routing"
)

var noRetry = routing.RetryConfig{MaxAttempts: 1}

func relayServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != payloadsPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("limit") != "100" {
			t.Errorf("unexpected limit %q", r.URL.Query().Get("limit"))
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestProposerPayloads(t *testing.T) {
	a := relayServer(t, `[{"slot":"10","block_number":"100","block_hash":"0xAA","builder_pubkey":"0xb1",
		"proposer_pubkey":"0xp1","proposer_fee_recipient":"0xf1","value":"500000000000000000",
		"gas_used":"21000","gas_limit":"30000000","num_tx":"1"}]`, http.StatusOK)
	b := relayServer(t, `[{"slot":"11","block_number":"101","value":"1"}]`, http.StatusOK)

	c := NewClient(map[string][]Endpoint{
		"holesky": {{Name: "a", URL: a.URL}, {Name: "b", URL: b.URL}},
	}, 100, 5*time.Second, noRetry)

	payloads, err := c.ProposerPayloads(context.Background(), "holesky")
	if err != nil {
		t.Fatalf("ProposerPayloads: %v", err)
	}
	if len(payloads) != 2 {
		t.Fatalf("got %d payloads, want 2", len(payloads))
	}
	p := payloads[0]
	if p.Relay != "a" || p.BlockNumber != 100 || p.Slot != 10 || p.BlockHash != "0xaa" || p.Value.String() != "500000000000000000" {
		t.Errorf("unexpected payload %+v", p)
	}
	if payloads[1].Relay != "b" || payloads[1].BlockNumber != 101 {
		t.Errorf("unexpected payload %+v", payloads[1])
	}
}

func TestProposerPayloadsRelayFailure(t *testing.T) {
	ok := relayServer(t, `[]`, http.StatusOK)
	bad := relayServer(t, `boom`, http.StatusInternalServerError)

	c := NewClient(map[string][]Endpoint{
		"holesky": {{Name: "ok", URL: ok.URL}, {Name: "bad", URL: bad.URL}},
	}, 100, 5*time.Second, noRetry)

	_, err := c.ProposerPayloads(context.Background(), "holesky")
	if err == nil || !strings.Contains(err.Error(), "relay bad") {
		t.Fatalf("err = %v, want failure from relay bad", err)
	}
}

func TestProposerPayloadsUnknownNetwork(t *testing.T) {
	c := NewClient(nil, 100, time.Second, noRetry)
	if _, err := c.ProposerPayloads(context.Background(), "mainnet"); err == nil {
		t.Fatal("expected error for unconfigured network")
	}
}
