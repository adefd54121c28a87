// Package tokens manages the OAuth token lifecycle of tenant users.
//
// A user is Unconnected until CompleteAuthorization stores a credential.
// A stored credential is Valid while now is before expires_at minus the
// configured lead time, and Expired afterwards. GetValidCredential moves an
// Expired credential back to Valid by refreshing it at the provider and
// persisting the result in one store write. Refresh rejections leave the
// stored credential untouched.
//
// The Manager keeps no per-user state in memory. Concurrent refreshes for
// the same user are not coordinated and the last store write wins.
package tokens
