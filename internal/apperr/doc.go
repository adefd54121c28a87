// Package apperr defines the error taxonomy shared by the credential store,
// the token manager and the email gateway.
//
// Every failure that crosses a component boundary is an *Error carrying a
// Kind. Callers branch on the kind with errors.Is against the exported
// sentinels or with KindOf:
//
//	if errors.Is(err, apperr.ErrUserNotConnected) {
//		// ask the user to connect their account
//	}
//
// Kinds are stable strings so they can be written into JSON error bodies
// and metric labels without translation.
package apperr
