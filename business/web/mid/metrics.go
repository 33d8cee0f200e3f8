package mid

import (
	"context"
	"net/http"
	"time"

	"github.com/dimfeld/httptreemux/v5"
	"github.com/ledgerlabs/gossipchain/business/sys/metrics"
	"github.com/ledgerlabs/gossipchain/foundation/web"
)

// Metrics updates program counters.
func Metrics() web.Middleware {

	// This is the actual middleware function to be executed.
	m := func(handler web.Handler) web.Handler {

		// Create the handler that will be attached in the middleware chain.
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			// Label by the route pattern so the number of series stays bounded.
			route := httptreemux.ContextRoute(ctx)
			if route == "" {
				route = "unknown"
			}

			start := time.Now()

			// Call the next handler.
			err := handler(ctx, w, r)

			// Increment the request and errors counters.
			metrics.AddRequest(route)
			metrics.ObserveDuration(route, time.Since(start).Seconds())
			if err != nil {
				metrics.AddError(route)
			}

			// Return the error so it can be handled further up the chain.
			return err
		}

		return h
	}

	return m
}
