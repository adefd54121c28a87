// Package server exposes the tenant mail API over HTTP.
//
// Routes:
//
//	POST   /v1/oauth/authorize             start the Gmail consent flow for a user
//	GET    /v1/oauth/callback              provider redirect target (public)
//	POST   /v1/oauth/callback              caller-relayed callback
//	POST   /v1/users/{user_id}/messages    send as the user
//	GET    /v1/users/{user_id}/profile     connection state and counters
//	DELETE /v1/users/{user_id}/gmail       disconnect the user
//	GET    /v1/reports/users/{user_id}     per-user analytics
//	GET    /v1/reports/summary             platform analytics
//
// Every /v1 route except the GET callback requires an API key sent as a
// Bearer token. The provider redirect cannot carry one.
//
// Health endpoints live on the main listener. Prometheus metrics are
// served by MetricsServer on a dedicated port so operational data is not
// reachable through the public API.
package server
