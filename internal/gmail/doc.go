// Package gmail delivers tenant messages through the Gmail API.
//
// The Client never holds a tenant credential. Every call receives the
// caller's current access token, so token freshness stays with the token
// manager:
//
//	client := gmail.NewClient(gmail.Options{Timeout: 15 * time.Second})
//	id, err := client.Send(ctx, accessToken, &gmail.Message{
//	    To:      []string{"recipient@example.com"},
//	    Subject: "Hello",
//	    Body:    "This is a test email",
//	})
//
// Provider failures are classified with apperr: a rejected token is
// apperr.ErrDeliveryUnauthorized, a rejected message is
// apperr.ErrDeliveryRejected, 429 and 5xx responses are
// apperr.ErrProviderUnavailable and deadline overruns are apperr.ErrTimeout.
package gmail
