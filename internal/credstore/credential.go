package credstore

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// UserCredential is the stored OAuth grant for one tenant user.
type UserCredential struct {
	UserID       string    `json:"user_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	EmailAddress string    `json:"email_address"`
	Scopes       []string  `json:"scopes,omitempty"`
	ConnectedAt  time.Time `json:"connected_at,omitzero"`
	UpdatedAt    time.Time `json:"updated_at,omitzero"`
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (c *UserCredential) Clone() *UserCredential {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Scopes = slices.Clone(c.Scopes)
	return &cp
}

// ExpiredAt reports whether the access token should be treated as expired
// at now, given a lead time subtracted from the literal expiry.
// A zero ExpiresAt is treated as expired.
func (c *UserCredential) ExpiredAt(now time.Time, lead time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return true
	}
	return !now.Before(c.ExpiresAt.Add(-lead))
}

func encodeCredential(cred *UserCredential) ([]byte, error) {
	data, err := json.Marshal(cred)
	if err != nil {
		return nil, fmt.Errorf("failed to encode credential: %w", err)
	}
	return data, nil
}

func decodeCredential(data []byte) (*UserCredential, error) {
	var cred UserCredential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("failed to decode credential: %w", err)
	}
	return &cred, nil
}
