// Package google holds the Google specific OAuth pieces: the client
// configuration, the scope set requested from tenants and token revocation.
package google
