// Package logging provides structured logging helpers for tenantmail.
//
// All components log through log/slog. This package keeps attribute names
// consistent and makes it hard to leak tenant data into logs:
//
//   - user ids and email addresses are logged as short sha256 prefixes
//   - OAuth tokens are reduced to a length marker
//
// Typical use:
//
//	logger := logging.WithOperation(slog.Default(), "tokens.refresh")
//	logger.Info("token refreshed",
//	    logging.UserID(userID),
//	    logging.Duration(time.Since(start)))
package logging
