// Package server provides the moodtape HTTP API on top of gorilla/mux.
//
// # Routes
//
//	GET    /health
//	GET    /metrics
//	POST   /api/recommendations
//	GET    /api/recommendations/latest
//	GET    /api/recommendations/latest/export?format=json|csv|markdown|txt
//	GET    /api/history?limit=&market=
//	GET    /api/history/{id}
//	GET    /api/history/{id}/export?format=
//	DELETE /api/history/{id}
//
// History references accept a run UUID or its sequence number ("3" or "#3").
//
// # Middleware
//
// [Middleware] is a [mux.MiddlewareFunc]. [New] installs recovery, request logging and request metrics in that order.
// Metrics are labelled with the route template, so /api/history/41 and /api/history/42 share one series.
//
// # Errors
//
// Failures are returned as {"error": message} with the message from [shared.UserMessage], so upstream
// error text never reaches clients. Invalid input maps to 400, unknown runs to 404, strategy generation
// and catalog request failures to 502, catalog authentication failures to 503 and timeouts to 504.
//
// # Handler Interface
//
// Route groups implement [Handler] and register their routes on the shared router. [API] is the only group today.
package server
