package api_test

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/raffleprotocol/raffle-indexer/internal/api"
)

// fakeGateway is a hand-built stub satisfying api.Gateway, so controller
// tests never touch a real database.
type fakeGateway struct {
	raffles      map[string]api.RaffleDTO
	purchases    map[string][]api.PurchaseDTO
	proofs       map[string]api.ProofDTO
	lastLimit    int32
	lastOffset   int32
}

func (f *fakeGateway) ListRaffles(ctx context.Context, status string, limit, offset int32) ([]api.RaffleDTO, error) {
	f.lastLimit, f.lastOffset = limit, offset
	var out []api.RaffleDTO
	for _, r := range f.raffles {
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeGateway) GetRaffle(ctx context.Context, raffleID *big.Int) (api.RaffleDTO, error) {
	r, ok := f.raffles[raffleID.String()]
	if !ok {
		return api.RaffleDTO{}, api.ErrNotFound
	}
	return r, nil
}

func (f *fakeGateway) ListPurchases(ctx context.Context, raffleID *big.Int) ([]api.PurchaseDTO, error) {
	if _, ok := f.raffles[raffleID.String()]; !ok {
		return nil, api.ErrNotFound
	}
	return f.purchases[raffleID.String()], nil
}

func (f *fakeGateway) GetProof(ctx context.Context, raffleID *big.Int) (api.ProofDTO, error) {
	p, ok := f.proofs[raffleID.String()]
	if !ok {
		return api.ProofDTO{}, api.ErrNotFound
	}
	return p, nil
}

func (f *fakeGateway) ListRandomnessRequests(ctx context.Context, requestID, raffleAddress, raffleID string, limit, offset int32) ([]api.RandomnessRequestDTO, error) {
	return nil, nil
}

func (f *fakeGateway) ListRandomnessFulfillments(ctx context.Context, requestID, raffleAddress string, limit, offset int32) ([]api.RandomnessFulfillmentDTO, error) {
	return nil, nil
}

func newTestRouter(gw api.Gateway) http.Handler {
	ctrl := api.NewRaffleController(gw)
	return api.NewRouter(ctrl, nil).Handler()
}

func TestGetRaffleNotFound(t *testing.T) {
	gw := &fakeGateway{raffles: map[string]api.RaffleDTO{}}
	rt := newTestRouter(gw)

	req := httptest.NewRequest(http.MethodGet, "/v1/raffles/99", nil)
	rw := httptest.NewRecorder()
	rt.ServeHTTP(rw, req)

	require.Equal(t, http.StatusNotFound, rw.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &body))
	require.Equal(t, "not found", body["message"])
}

func TestGetRaffleFound(t *testing.T) {
	gw := &fakeGateway{raffles: map[string]api.RaffleDTO{
		"1": {RaffleID: api.NewDecimal(big.NewInt(1)), RaffleAddress: "0xabc", Status: "ACTIVE"},
	}}
	rt := newTestRouter(gw)

	req := httptest.NewRequest(http.MethodGet, "/v1/raffles/1", nil)
	rw := httptest.NewRecorder()
	rt.ServeHTTP(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
	var body api.RaffleDTO
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &body))
	require.Equal(t, "0xabc", body.RaffleAddress)
}

func TestGetRaffleInvalidID(t *testing.T) {
	gw := &fakeGateway{raffles: map[string]api.RaffleDTO{}}
	rt := newTestRouter(gw)

	req := httptest.NewRequest(http.MethodGet, "/v1/raffles/not-a-number", nil)
	rw := httptest.NewRecorder()
	rt.ServeHTTP(rw, req)

	require.Equal(t, http.StatusBadRequest, rw.Code)
}

func TestListRafflesRejectsOversizedLimit(t *testing.T) {
	gw := &fakeGateway{raffles: map[string]api.RaffleDTO{}}
	rt := newTestRouter(gw)

	req := httptest.NewRequest(http.MethodGet, "/v1/raffles?limit=101", nil)
	rw := httptest.NewRecorder()
	rt.ServeHTTP(rw, req)

	require.Equal(t, http.StatusBadRequest, rw.Code)
}

func TestListRafflesDefaultsPagination(t *testing.T) {
	gw := &fakeGateway{raffles: map[string]api.RaffleDTO{
		"1": {RaffleID: api.NewDecimal(big.NewInt(1)), Status: "ACTIVE"},
	}}
	rt := newTestRouter(gw)

	req := httptest.NewRequest(http.MethodGet, "/v1/raffles", nil)
	rw := httptest.NewRecorder()
	rt.ServeHTTP(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
	require.EqualValues(t, api.DefaultLimit, gw.lastLimit)
	require.EqualValues(t, 0, gw.lastOffset)
}

func TestGetProofReturnsWinningRange(t *testing.T) {
	wr := api.WinningRangeDTO{Buyer: "0xbob", StartIndex: 3, EndIndex: 4}
	gw := &fakeGateway{
		raffles: map[string]api.RaffleDTO{"1": {RaffleID: api.NewDecimal(big.NewInt(1))}},
		proofs: map[string]api.ProofDTO{
			"1": {
				RaffleID:     api.NewDecimal(big.NewInt(1)),
				TotalTickets: 5,
				WinningRange: &wr,
			},
		},
	}
	rt := newTestRouter(gw)

	req := httptest.NewRequest(http.MethodGet, "/v1/raffles/1/proof", nil)
	rw := httptest.NewRecorder()
	rt.ServeHTTP(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
	var body api.ProofDTO
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &body))
	require.NotNil(t, body.WinningRange)
	require.Equal(t, "0xbob", body.WinningRange.Buyer)
}

func TestDecimalMarshalsAsString(t *testing.T) {
	d := api.NewDecimal(big.NewInt(123456789012345678))
	out, err := json.Marshal(d)
	require.NoError(t, err)
	require.Equal(t, `"123456789012345678"`, string(out))

	var nilDecimal api.Decimal
	out, err = json.Marshal(nilDecimal)
	require.NoError(t, err)
	require.Equal(t, `null`, string(out))
}

func TestHealthOK(t *testing.T) {
	rt := newTestRouter(&fakeGateway{raffles: map[string]api.RaffleDTO{}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rw := httptest.NewRecorder()
	rt.ServeHTTP(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
}
