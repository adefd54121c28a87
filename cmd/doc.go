// Package cmd implements the tenantmail command-line interface.
//
// Commands:
//   - serve: run the HTTP API
//   - auth-url: print a consent URL for one user
//   - version: print the build version
package cmd
