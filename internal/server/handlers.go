package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/teemow/tenantmail/internal/analytics"
	"github.com/teemow/tenantmail/internal/apperr"
	"github.com/teemow/tenantmail/internal/credstore"
	"github.com/teemow/tenantmail/internal/gmail"
	"github.com/teemow/tenantmail/internal/logging"
)

const (
	statusConnected    = "connected"
	statusDisconnected = "disconnected"
	statusSent         = "sent"
)

// AuthorizeRequest starts a consent flow.
type AuthorizeRequest struct {
	UserID      string `json:"user_id"`
	RedirectURI string `json:"redirect_uri,omitempty"`
}

// AuthorizeResponse carries the consent URL. State is the user id.
type AuthorizeResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

// CallbackRequest is the body of the caller-relayed callback.
type CallbackRequest struct {
	Code        string `json:"code"`
	State       string `json:"state"`
	RedirectURI string `json:"redirect_uri,omitempty"`
}

// ConnectedResponse reports a completed authorization.
type ConnectedResponse struct {
	Status       string `json:"status"`
	UserID       string `json:"user_id"`
	EmailAddress string `json:"email_address"`
	Message      string `json:"message"`
}

// SendResponse reports a delivered message.
type SendResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
}

// ProfileResponse combines connection state with send counters.
type ProfileResponse struct {
	UserID              string    `json:"user_id"`
	EmailAddress        string    `json:"email_address,omitempty"`
	Connected           bool      `json:"connected"`
	ConnectedAt         time.Time `json:"connected_at,omitzero"`
	TotalEmailsSent     int64     `json:"total_emails_sent"`
	EmailsSentThisMonth int64     `json:"emails_sent_this_month"`
	LastEmailSentAt     time.Time `json:"last_email_sent_at,omitzero"`
}

// DisconnectResponse confirms a disconnect.
type DisconnectResponse struct {
	Status string `json:"status"`
	UserID string `json:"user_id"`
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	var req AuthorizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := credstore.ValidateUserID(req.UserID); err != nil {
		writeError(w, err)
		return
	}
	if req.RedirectURI != "" {
		if err := validateRedirectURI(req.RedirectURI); err != nil {
			writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, AuthorizeResponse{
		AuthorizationURL: s.opts.Tokens.GenerateAuthorizationURL(req.UserID, req.RedirectURI),
		State:            req.UserID,
	})
}

// handleCallback is the public target of the provider redirect.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state := q.Get("state")

	if providerErr := q.Get("error"); providerErr != "" {
		desc := q.Get("error_description")
		if desc == "" {
			desc = providerErr
		}
		err := apperr.New(apperr.KindInvalidGrant, "server.callback", fmt.Sprintf("authorization was not granted: %s", desc))
		s.logger.Warn("provider returned an authorization error",
			logging.UserID(state), "provider_error", providerErr,
			logging.RequestID(logging.RequestIDFrom(r.Context())))
		s.callbackFailed(w, r, state, err)
		return
	}

	cred, err := s.opts.Tokens.CompleteAuthorization(r.Context(), q.Get("code"), state, s.callbackRedirectURI(r))
	if err != nil {
		s.callbackFailed(w, r, state, err)
		return
	}

	if s.opts.SuccessRedirectURL != "" {
		http.Redirect(w, r, withQuery(s.opts.SuccessRedirectURL, url.Values{
			"status":  {statusConnected},
			"user_id": {cred.UserID},
		}), http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, connected(cred))
}

// callbackRedirectURI returns the redirect URI the provider sent the browser
// to, which the code exchange must repeat. The provider does not echo it, so
// it is rebuilt from the request unless the configured default already names
// this host and path.
func (s *Server) callbackRedirectURI(r *http.Request) string {
	if v := r.URL.Query().Get("redirect_uri"); v != "" {
		return v
	}

	scheme, host := "http", r.Host
	if r.TLS != nil {
		scheme = "https"
	}
	if s.opts.TrustProxy {
		if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
			scheme = proto
		}
		if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
			host = strings.TrimSpace(strings.Split(fwd, ",")[0])
		}
	}

	if s.opts.DefaultRedirectURI != "" {
		if def, err := url.Parse(s.opts.DefaultRedirectURI); err == nil &&
			strings.EqualFold(def.Host, host) && def.Path == r.URL.Path {
			return s.opts.DefaultRedirectURI
		}
	}
	return (&url.URL{Scheme: scheme, Host: host, Path: r.URL.Path}).String()
}

func (s *Server) callbackFailed(w http.ResponseWriter, r *http.Request, state string, err error) {
	if s.opts.ErrorRedirectURL == "" {
		writeError(w, err)
		return
	}
	values := url.Values{"error": {string(apperr.KindOf(err))}}
	if credstore.ValidateUserID(state) == nil {
		values.Set("user_id", state)
	}
	http.Redirect(w, r, withQuery(s.opts.ErrorRedirectURL, values), http.StatusFound)
}

// handleCallbackBridge completes a callback relayed by a trusted caller.
// Fields may come in a JSON body or as query parameters.
func (s *Server) handleCallbackBridge(w http.ResponseWriter, r *http.Request) {
	var req CallbackRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	q := r.URL.Query()
	if req.Code == "" {
		req.Code = q.Get("code")
	}
	if req.State == "" {
		req.State = q.Get("state")
	}
	if req.RedirectURI == "" {
		req.RedirectURI = q.Get("redirect_uri")
	}

	cred, err := s.opts.Tokens.CompleteAuthorization(r.Context(), req.Code, req.State, req.RedirectURI)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, connected(cred))
}

func connected(cred *credstore.UserCredential) ConnectedResponse {
	return ConnectedResponse{
		Status:       statusConnected,
		UserID:       cred.UserID,
		EmailAddress: cred.EmailAddress,
		Message:      "Gmail account connected successfully",
	}
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	if err := credstore.ValidateUserID(userID); err != nil {
		writeError(w, err)
		return
	}
	var msg gmail.Message
	if err := decodeJSON(w, r, &msg); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.opts.Sender.SendAsUser(r.Context(), userID, &msg)
	if recordable(err) {
		outcome := analytics.SendOutcome{UserID: userID, Message: &msg, Err: err}
		if result != nil {
			outcome.From = result.From
			outcome.MessageID = result.MessageID
			outcome.Attempts = result.Attempts
		}
		s.opts.Analytics.RecordSend(r.Context(), outcome)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SendResponse{
		MessageID: result.MessageID,
		Status:    statusSent,
		Attempts:  result.Attempts,
	})
}

// recordable reports whether a send outcome belongs in the email log.
// Requests that never reached the provider do not.
func recordable(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindInvalidInput, apperr.KindUserNotConnected:
		return false
	default:
		return true
	}
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	if err := credstore.ValidateUserID(userID); err != nil {
		writeError(w, err)
		return
	}

	profile := ProfileResponse{UserID: userID}
	cred, err := s.opts.Tokens.Lookup(r.Context(), userID)
	switch {
	case err == nil:
		profile.Connected = true
		profile.EmailAddress = cred.EmailAddress
		profile.ConnectedAt = cred.ConnectedAt
	case apperr.IsKind(err, apperr.KindUserNotConnected):
	default:
		writeError(w, err)
		return
	}

	stats, err := s.opts.Analytics.Stats(r.Context(), userID)
	if err != nil {
		s.logger.Warn("failed to load user stats", logging.UserID(userID), logging.Err(err))
	} else {
		profile.TotalEmailsSent = stats.TotalEmailsSent
		profile.EmailsSentThisMonth = stats.ThisMonth(s.opts.Analytics.Now())
		profile.LastEmailSentAt = stats.LastEmailSentAt
	}

	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	if err := s.opts.Tokens.Disconnect(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DisconnectResponse{Status: statusDisconnected, UserID: userID})
}

func (s *Server) handleUserReport(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	if err := credstore.ValidateUserID(userID); err != nil {
		writeError(w, err)
		return
	}
	days, err := queryInt(r, "days")
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}

	report, err := s.opts.Analytics.UserAnalytics(r.Context(), userID, days, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days")
	if err != nil {
		writeError(w, err)
		return
	}
	summary, err := s.opts.Analytics.PlatformSummary(r.Context(), days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	const op = "server.decode"

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apperr.New(apperr.KindInvalidInput, op, "request body is too large")
		case errors.Is(err, io.EOF):
			return apperr.New(apperr.KindInvalidInput, op, "request body is required")
		default:
			return apperr.New(apperr.KindInvalidInput, op, "request body is not valid JSON")
		}
	}
	if dec.More() {
		return apperr.New(apperr.KindInvalidInput, op, "request body must hold a single JSON object")
	}
	return nil
}

// queryInt parses an optional integer parameter. Absent means 0, which
// downstream treats as the default.
func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.New(apperr.KindInvalidInput, "server.query", fmt.Sprintf("%s must be an integer", name))
	}
	return v, nil
}

func validateRedirectURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperr.New(apperr.KindInvalidInput, "server.authorize", "redirect_uri must be an absolute http or https URL")
	}
	return nil
}

// withQuery merges values into the query string of base.
func withQuery(base string, values url.Values) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	for k, vs := range values {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	return u.String()
}
