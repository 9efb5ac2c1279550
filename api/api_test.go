package api_test

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xraph/tenure"
	"github.com/xraph/tenure/api"
	"github.com/xraph/tenure/store/memory"
	"github.com/xraph/tenure/types"
	"github.com/xraph/tenure/voucher"
)

var (
	system    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	recipient = common.HexToAddress("0x1111111111111111111111111111111111111111")
	payer     = common.HexToAddress("0x2222222222222222222222222222222222222222")
	stranger  = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

type server struct {
	*httptest.Server
	authority common.Address
	sign      func(voucher.Voucher) string
}

func newServer(t *testing.T) *server {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	authority := crypto.PubkeyToAddress(key.PublicKey)

	clock := func() time.Time { return time.Unix(0, 0) }
	engine, err := tenure.New(memory.New(),
		tenure.WithLogger(zaptest.NewLogger(t)),
		tenure.WithClock(clock),
		tenure.WithAuthority(authority),
		tenure.WithSystemAddress(system),
	)
	require.NoError(t, err)

	h := api.New(engine,
		api.WithLogger(zaptest.NewLogger(t)),
		api.WithMetrics(api.NewMetrics(prometheus.NewRegistry())),
		api.WithClock(clock),
	)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return &server{
		Server:    srv,
		authority: authority,
		sign: func(v voucher.Voucher) string {
			sig, err := voucher.Sign(v, system, key)
			require.NoError(t, err)
			return "0x" + hex.EncodeToString(sig)
		},
	}
}

func (s *server) do(t *testing.T, method, path string, caller common.Address, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	if caller != (common.Address{}) {
		req.Header.Set(api.CallerHeader, caller.Hex())
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func redeemBody(s *server) map[string]any {
	v := voucher.Voucher{
		Recipient:       recipient,
		MetadataRef:     "ipfs://bafy/1.json",
		Duration:        1000 * time.Second,
		RenewableWindow: 500 * time.Second,
		Price:           types.New(1000, "wei"),
		IssuedAt:        time.Unix(0, 0),
	}
	return map[string]any{
		"voucher": map[string]any{
			"recipient":                recipient.Hex(),
			"metadata_ref":             v.MetadataRef,
			"duration_seconds":         1000,
			"renewable_window_seconds": 500,
			"price":                    map[string]any{"amount": 1000, "currency": "wei"},
			"issued_at":                0,
		},
		"signature": s.sign(v),
		"payer":     payer.Hex(),
		"payment":   map[string]any{"amount": 1000, "currency": "wei"},
	}
}

func TestRedeemRenewCancel(t *testing.T) {
	s := newServer(t)

	resp, out := s.do(t, http.MethodPost, "/vouchers/redeem", payer, redeemBody(s))
	require.Equal(t, http.StatusCreated, resp.StatusCode, out)
	assert.InDelta(t, 1, out["asset_id"], 0)

	resp, out = s.do(t, http.MethodGet, "/assets/1/subscription", common.Address{}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, 1000, out["expires_at"], 0)
	assert.InDelta(t, 500, out["renewable_until"], 0)
	assert.Equal(t, true, out["active"])

	resp, out = s.do(t, http.MethodGet, "/assets/1/quote?duration_seconds=200", common.Address{}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"amount": float64(200), "currency": "wei"}, out["fee"])

	resp, out = s.do(t, http.MethodPost, "/assets/1/renew", recipient, map[string]any{
		"duration_seconds": 200,
		"payment":          map[string]any{"amount": 200, "currency": "wei"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, out)
	assert.InDelta(t, 1200, out["expires_at"], 0)

	resp, _ = s.do(t, http.MethodPost, "/assets/1/cancel", recipient, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, s.URL+"/assets/1/events", nil)
	require.NoError(t, err)
	evResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer evResp.Body.Close()

	var events []map[string]any
	require.NoError(t, json.NewDecoder(evResp.Body).Decode(&events))
	require.Len(t, events, 2)
	assert.Equal(t, "renewal", events[0]["reason"])
	assert.Equal(t, "cancellation", events[1]["reason"])
	assert.InDelta(t, 0, events[1]["new_expiration"], 0)
}

func TestErrorCodes(t *testing.T) {
	s := newServer(t)

	body := redeemBody(s)
	resp, _ := s.do(t, http.MethodPost, "/vouchers/redeem", payer, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, out := s.do(t, http.MethodPost, "/vouchers/redeem", payer, body)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, api.CodeReplayedSignature, out["code"])

	resp, out = s.do(t, http.MethodPost, "/vouchers/redeem", common.Address{}, body)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, api.CodeMissingCaller, out["code"])

	body["payer"] = "not-an-address"
	resp, out = s.do(t, http.MethodPost, "/vouchers/redeem", payer, body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, api.CodeInvalidInput, out["code"])

	resp, out = s.do(t, http.MethodPost, "/assets/1/renew", stranger, map[string]any{
		"duration_seconds": 10,
		"payment":          map[string]any{"amount": 10, "currency": "wei"},
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, api.CodeNotAuthorized, out["code"])

	resp, out = s.do(t, http.MethodPost, "/assets/1/renew", recipient, map[string]any{
		"duration_seconds": 10,
		"payment":          map[string]any{"amount": 1, "currency": "wei"},
	})
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, api.CodePaymentMismatch, out["code"])

	resp, out = s.do(t, http.MethodPost, "/assets/1/renew", recipient, map[string]any{
		"duration_seconds": 0,
		"payment":          map[string]any{"amount": 0, "currency": "wei"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, api.CodeInvalidDuration, out["code"])

	resp, out = s.do(t, http.MethodGet, "/assets/0/subscription", common.Address{}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, api.CodeNotFound, out["code"])
}

func TestRedeemPayerIsCaller(t *testing.T) {
	s := newServer(t)

	body := redeemBody(s)
	body["payer"] = stranger.Hex()
	resp, out := s.do(t, http.MethodPost, "/vouchers/redeem", payer, body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, api.CodeInvalidInput, out["code"])
	assert.Contains(t, out["message"], "payer")

	resp, _ = s.do(t, http.MethodGet, "/assets/1/subscription", common.Address{}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Omitted payer defaults to the caller.
	delete(body, "payer")
	resp, out = s.do(t, http.MethodPost, "/vouchers/redeem", payer, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode, out)

	req, err := http.NewRequest(http.MethodGet, s.URL+"/receipts/"+payer.Hex(), nil)
	require.NoError(t, err)
	rResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer rResp.Body.Close()

	var receipts []map[string]any
	require.NoError(t, json.NewDecoder(rResp.Body).Decode(&receipts))
	require.Len(t, receipts, 1)
	from, _ := receipts[0]["from"].(string)
	assert.Equal(t, payer, common.HexToAddress(from))
}

func TestQuoteOverflowIsInvalidInput(t *testing.T) {
	s := newServer(t)

	v := voucher.Voucher{
		Recipient:       recipient,
		MetadataRef:     "ipfs://bafy/1.json",
		Duration:        time.Second,
		RenewableWindow: 10 * time.Second,
		Price:           types.New(1<<62, "wei"),
		IssuedAt:        time.Unix(0, 0),
	}
	resp, out := s.do(t, http.MethodPost, "/vouchers/redeem", payer, map[string]any{
		"voucher": map[string]any{
			"recipient":                recipient.Hex(),
			"metadata_ref":             v.MetadataRef,
			"duration_seconds":         1,
			"renewable_window_seconds": 10,
			"price":                    map[string]any{"amount": int64(1 << 62), "currency": "wei"},
			"issued_at":                0,
		},
		"signature": s.sign(v),
		"payment":   map[string]any{"amount": int64(1 << 62), "currency": "wei"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, out)

	resp, out = s.do(t, http.MethodGet, "/assets/1/quote?duration_seconds=4", common.Address{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, api.CodeInvalidInput, out["code"])
}

func TestPauseRoutes(t *testing.T) {
	s := newServer(t)

	resp, out := s.do(t, http.MethodPost, "/pause", stranger, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, api.CodeNotAuthorized, out["code"])

	resp, _ = s.do(t, http.MethodPost, "/pause", s.authority, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, out = s.do(t, http.MethodPost, "/vouchers/redeem", payer, redeemBody(s))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, api.CodeSystemPaused, out["code"])

	resp, _ = s.do(t, http.MethodPost, "/unpause", s.authority, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	s := newServer(t)

	resp, out := s.do(t, http.MethodGet, "/healthz", common.Address{}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", out["status"])
}
