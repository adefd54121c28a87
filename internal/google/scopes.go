package google

import (
	gmail "google.golang.org/api/gmail/v1"
)

// GmailScopes are requested from every tenant. gmail.send covers delivery,
// gmail.readonly covers users.getProfile for resolving the address.
var GmailScopes = []string{
	gmail.GmailSendScope,
	gmail.GmailReadonlyScope,
}
