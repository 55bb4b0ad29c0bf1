package api

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/raffleprotocol/raffle-indexer/internal/apierrors"
)

// RaffleController defines the HTTP handlers over the projection, modeled
// on the teacher's SystemController: every handler recovers nothing,
// mapping repository errors to HTTP status codes and never leaking SQL
// detail to the client (spec.md §7).
type RaffleController struct {
	gw Gateway
}

// NewRaffleController returns a RaffleController backed by gw.
func NewRaffleController(gw Gateway) *RaffleController {
	return &RaffleController{gw: gw}
}

func writeJSON(rw http.ResponseWriter, status int, body interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(body)
}

func writeError(rw http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, ErrNotFound):
		writeJSON(rw, http.StatusNotFound, apierrors.ServiceError{Message: "not found"})
	case errors.Is(err, ErrInvalidArgument):
		writeJSON(rw, http.StatusBadRequest, apierrors.ServiceError{Message: err.Error()})
	default:
		log.Ctx(ctx).Error().Err(err).Str("path", r.URL.Path).Msg("read api request failed")
		writeJSON(rw, http.StatusInternalServerError, apierrors.ServiceError{Message: "internal error"})
	}
}

// Health handles GET /health.
func (c *RaffleController) Health(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]string{"status": "ok"})
}

// parsePagination reads limit/offset query params, enforcing the spec's
// limit<=100 bound (spec.md §6).
func parsePagination(r *http.Request) (limit, offset int32, err error) {
	limit = DefaultLimit
	offset = 0

	if v := r.URL.Query().Get("limit"); v != "" {
		n, perr := strconv.ParseInt(v, 10, 32)
		if perr != nil || n <= 0 {
			return 0, 0, apiErrorf("limit must be a positive integer")
		}
		limit = int32(n)
	}
	if limit > MaxLimit {
		return 0, 0, apiErrorf("limit must be <= %d", MaxLimit)
	}

	if v := r.URL.Query().Get("offset"); v != "" {
		n, perr := strconv.ParseInt(v, 10, 32)
		if perr != nil || n < 0 {
			return 0, 0, apiErrorf("offset must be a non-negative integer")
		}
		offset = int32(n)
	}
	return limit, offset, nil
}

func apiErrorf(format string, args ...interface{}) error {
	return errFmt(ErrInvalidArgument, format, args...)
}

// ListRaffles handles GET /v1/raffles.
func (c *RaffleController) ListRaffles(rw http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	status := r.URL.Query().Get("status")

	raffles, err := c.gw.ListRaffles(r.Context(), status, limit, offset)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, raffles)
}

func parseRaffleID(r *http.Request) (*big.Int, error) {
	vars := mux.Vars(r)
	id, ok := new(big.Int).SetString(vars["id"], 10)
	if !ok {
		return nil, apiErrorf("invalid raffle id %q", vars["id"])
	}
	return id, nil
}

// GetRaffle handles GET /v1/raffles/{id}.
func (c *RaffleController) GetRaffle(rw http.ResponseWriter, r *http.Request) {
	id, err := parseRaffleID(r)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	raffle, err := c.gw.GetRaffle(r.Context(), id)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, raffle)
}

// ListPurchases handles GET /v1/raffles/{id}/purchases.
func (c *RaffleController) ListPurchases(rw http.ResponseWriter, r *http.Request) {
	id, err := parseRaffleID(r)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	purchases, err := c.gw.ListPurchases(r.Context(), id)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, purchases)
}

// GetProof handles GET /v1/raffles/{id}/proof.
func (c *RaffleController) GetProof(rw http.ResponseWriter, r *http.Request) {
	id, err := parseRaffleID(r)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	proof, err := c.gw.GetProof(r.Context(), id)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, proof)
}

// ListRandomnessRequests handles GET /v1/randomness/requests.
func (c *RaffleController) ListRandomnessRequests(rw http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	q := r.URL.Query()
	requests, err := c.gw.ListRandomnessRequests(
		r.Context(),
		q.Get("request_id"), q.Get("raffle_address"), q.Get("raffle_id"),
		limit, offset,
	)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, requests)
}

// ListRandomnessFulfillments handles GET /v1/randomness/fulfillments.
func (c *RaffleController) ListRandomnessFulfillments(rw http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	q := r.URL.Query()
	fulfillments, err := c.gw.ListRandomnessFulfillments(
		r.Context(),
		q.Get("request_id"), q.Get("raffle_address"),
		limit, offset,
	)
	if err != nil {
		writeError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, fulfillments)
}
