// Package instrumentation wires OpenTelemetry metrics and tracing for tenantmail.
//
// Metrics:
//   - http_requests_total, http_request_duration_seconds: API traffic by method, route and status
//   - google_api_operations_total, google_api_operation_duration_seconds: Gmail calls
//   - oauth_authorizations_total: completed code exchanges by result
//   - oauth_token_refresh_total: refreshes by result
//   - email_deliveries_total, email_delivery_attempts: sendAsUser outcomes
//   - credential_store_operations_total, credential_store_operation_duration_seconds
//
// Exporters are prometheus (default, served by the dedicated metrics server),
// otlp or stdout. Tracing is off unless TRACING_EXPORTER selects otlp or stdout.
//
// Environment:
//   - INSTRUMENTATION_ENABLED (default: true)
//   - METRICS_EXPORTER, TRACING_EXPORTER
//   - OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE
//   - OTEL_TRACES_SAMPLER_ARG (default: 0.1)
//   - OTEL_SERVICE_NAME (default: tenantmail)
//
// All Metrics methods are no-ops on a disabled provider, so callers never
// need nil checks.
package instrumentation
