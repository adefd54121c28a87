package credstore

import (
	"context"
	"encoding/base32"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/teemow/tenantmail/internal/apperr"
)

// Store is per-user credential persistence.
type Store interface {
	// Get returns the stored credential or an apperr.ErrNotFound error.
	Get(ctx context.Context, userID string) (*UserCredential, error)

	// Put overwrites the stored credential for userID.
	Put(ctx context.Context, userID string, cred *UserCredential) error

	// Delete removes the credential. Deleting an unknown user succeeds.
	Delete(ctx context.Context, userID string) error
}

// Backend names accepted by Config.Backend.
const (
	BackendMemory = "memory"
	BackendGCP    = "gcp"
	BackendAWS    = "aws"
	BackendRedis  = "redis"
)

// DefaultSecretPrefix prefixes secret names and ids in the cloud backends.
const DefaultSecretPrefix = "emailmcp"

// DefaultTimeout bounds every backend call when Config.Timeout is zero.
const DefaultTimeout = 5 * time.Second

var validUserID = regexp.MustCompile(`^[A-Za-z0-9_.@-]{1,128}$`)

// ValidateUserID rejects ids that cannot be embedded in secret names or keys.
func ValidateUserID(userID string) error {
	if !validUserID.MatchString(userID) {
		return apperr.New(apperr.KindInvalidInput, "credstore", fmt.Sprintf("invalid user id %q", userID))
	}
	return nil
}

// gcpSecretID is the Secret Manager secret id for a user.
func gcpSecretID(prefix, userID string) string {
	return fmt.Sprintf("%s-user-%s-gmail", prefix, encodeSecretID(userID))
}

// awsSecretName is the Secrets Manager secret name for a user.
func awsSecretName(prefix, userID string) string {
	return fmt.Sprintf("%s/users/%s/gmail", prefix, userID)
}

// redisKey is the key holding the current credential for a user.
func redisKey(prefix, userID string) string {
	return prefix + "user:" + userID + ":gmail"
}

// Secret Manager ids only allow [A-Za-z0-9_-] and at most 255 characters.
// Ids made of letters, digits and dashes are used as is. Any other id is
// base32 encoded behind encodedIDMarker; raw ids never contain '_', so the
// two forms cannot collide.
const (
	encodedIDMarker   = "b32_"
	maxSecretIDLength = 255
)

var (
	plainSecretID = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
	secretIDChars = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	secretIDCodec = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)
)

func encodeSecretID(userID string) string {
	if plainSecretID.MatchString(userID) {
		return userID
	}
	return encodedIDMarker + secretIDCodec.EncodeToString([]byte(userID))
}

// maxGCPPrefixLength keeps the secret id of the longest valid user id within
// the Secret Manager limit.
var maxGCPPrefixLength = maxSecretIDLength - len(gcpSecretID("", strings.Repeat(".", 128)))

func validateGCPPrefix(prefix string) error {
	if len(prefix) > maxGCPPrefixLength {
		return fmt.Errorf("gcp secret prefix must be at most %d characters", maxGCPPrefixLength)
	}
	if prefix != "" && !secretIDChars.MatchString(prefix) {
		return errors.New("gcp secret prefix may only contain letters, digits, '_' and '-'")
	}
	return nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeout(ctx, d)
}

// classify maps a failed backend call to Timeout when the call deadline
// passed, to Canceled when the caller gave up and to StoreUnavailable
// otherwise.
func classify(ctx context.Context, op string, err error) error {
	if ierr := apperr.Interrupted(ctx, op, err); ierr != nil {
		return ierr
	}
	return apperr.Unavailable(apperr.KindStoreUnavailable, op, err)
}

func notFound(op string) error {
	return apperr.New(apperr.KindNotFound, op, "no credential stored")
}
