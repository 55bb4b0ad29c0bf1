package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Router is a thin wrapper over gorilla/mux, mirroring the teacher's
// cmd/api/router.go: one subrouter per path, scoped to a single HTTP method,
// with per-route middleware support.
type Router struct {
	r *mux.Router
}

// NewRouter constructs the Read API's routes, wiring RaffleController's
// handlers to the HTTP surface named in spec.md §6.
func NewRouter(ctrl *RaffleController, rateLimit func(http.Handler) http.Handler) *Router {
	rt := &Router{r: mux.NewRouter()}
	rt.r.Use(OtelHTTP("raffleindexer.api"))
	rt.r.Use(RequestID)
	rt.r.Use(GzipCompression)
	if rateLimit != nil {
		rt.r.Use(rateLimit)
	}

	rt.get("/health", ctrl.Health)
	rt.get("/v1/raffles", ctrl.ListRaffles)
	rt.get("/v1/raffles/{id}", ctrl.GetRaffle)
	rt.get("/v1/raffles/{id}/purchases", ctrl.ListPurchases)
	rt.get("/v1/raffles/{id}/proof", ctrl.GetProof)
	rt.get("/v1/randomness/requests", ctrl.ListRandomnessRequests)
	rt.get("/v1/randomness/fulfillments", ctrl.ListRandomnessFulfillments)

	return rt
}

func (rt *Router) get(uri string, f func(http.ResponseWriter, *http.Request)) {
	rt.r.Path(uri).Methods(http.MethodGet).HandlerFunc(f)
}

// Handler returns the assembled http.Handler.
func (rt *Router) Handler() http.Handler {
	return rt.r
}

// Serve starts listening and blocks, mirroring the teacher's router.Serve.
func (rt *Router) Serve(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      rt.r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return srv.ListenAndServe()
}
