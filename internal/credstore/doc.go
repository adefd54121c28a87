// Package credstore persists per-user OAuth credentials.
//
// A Store is an opaque key-value store keyed by tenant user id. It carries no
// business logic: Get reports apperr.ErrNotFound for users that never
// connected, Put overwrites (creating a new backend version where the backend
// supports versions) and Delete is idempotent. Backend failures surface as
// apperr.ErrStoreUnavailable, or apperr.ErrTimeout when the per-call deadline
// expires. Nothing is retried here.
//
// Backends:
//   - memory: process-local map, for development and tests
//   - gcp: Google Secret Manager, one secret per user
//   - aws: AWS Secrets Manager, one secret per user
//   - redis: one key per user plus a short version history list
//
// Encryption at rest is the backend's responsibility.
package credstore
