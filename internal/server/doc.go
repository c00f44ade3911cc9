// Package server exposes one spinwheel shell over HTTP.
//
// # Overview
//
// New opens the configured storage area, starts storage event sync (in
// process, or across processes through NATS), and builds the app shell.
// Run serves the JSON API until its context is cancelled.
//
// # Endpoints
//
//	GET    /health
//	GET    /api/participants
//	POST   /api/participants                  {"name": "..."}
//	POST   /api/participants/bulk             {"names": ["..."]}
//	PUT    /api/participants                  [Participant]
//	DELETE /api/participants
//	DELETE /api/participants/{id}
//	GET    /api/settings
//	PUT    /api/settings/selection-type       {"selectionType": "wheel"|"dartboard"}
//	POST   /api/settings/exclude-previous-winners/toggle
//	PUT    /api/settings/animation-duration   {"animationDuration": 3000}
//	POST   /api/settings/dark-mode/toggle
//	GET    /api/history
//	DELETE /api/history
//	DELETE /api/history/{id}
//	GET    /api/history/winners
//	GET    /api/history/export?format=markdown|html
//	POST   /api/spin
//	GET    /api/events                        websocket of storage events
//	GET    /metrics                           when metrics are enabled
//
// Errors are returned as {"error": "message"}.
package server
