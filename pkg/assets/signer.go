package assets

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inklet/inklet/pkg/types"
)

// Scope identifies whose plugin tree an asset belongs to.
type Scope struct {
	Tag        string // "global" or "user"
	OwnerID    string // uuid string for user scope, empty for global
	ShareToken string // part of the canonical payload even when empty
}

// GlobalScope addresses the shared plugin tree.
func GlobalScope() Scope {
	return Scope{Tag: "global"}
}

// UserScope addresses one user's plugin tree, optionally through a share
// token.
func UserScope(owner uuid.UUID, shareToken string) Scope {
	return Scope{Tag: "user", OwnerID: owner.String(), ShareToken: shareToken}
}

// Signer mints and verifies time-limited asset URLs with HMAC-SHA256 over
// a canonical pipe-delimited payload.
type Signer struct {
	key []byte
	now func() time.Time
}

// NewSigner creates a signer from the shared secret.
func NewSigner(secret string) *Signer {
	return &Signer{key: []byte(secret), now: time.Now}
}

// GenerateSecret returns a fresh random signing secret for runs without a
// configured one.
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate signing secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// SignURL mints a signed asset URL. The relative path is normalized first;
// unsafe paths fail with types.ErrInvalidInput.
func (s *Signer) SignURL(scope Scope, pluginID, version, relativePath string, ttl time.Duration) (string, error) {
	normalized, err := NormalizePath(relativePath)
	if err != nil {
		return "", err
	}
	expiresAt := s.now().Unix() + int64(ttl/time.Second)
	payload := buildPayload(scope, pluginID, version, normalized, expiresAt)
	signature := s.signPayload(payload)

	var b strings.Builder
	fmt.Fprintf(&b, "/api/plugin-assets?scope=%s&plugin=%s&version=%s&path=%s&exp=%d&sig=%s",
		scope.Tag,
		url.QueryEscape(pluginID),
		url.QueryEscape(version),
		url.QueryEscape(normalized),
		expiresAt,
		signature,
	)
	if scope.Tag == "user" {
		b.WriteString("&owner=")
		b.WriteString(scope.OwnerID)
		if scope.ShareToken != "" {
			b.WriteString("&share=")
			b.WriteString(url.QueryEscape(scope.ShareToken))
		}
	}
	return b.String(), nil
}

// VerifyURL checks a signature produced by SignURL. Expired timestamps,
// path normalization failures and signature decode errors all verify
// false.
func (s *Signer) VerifyURL(scope Scope, pluginID, version, relativePath string, expiresAt int64, signature string) bool {
	if expiresAt <= s.now().Unix() {
		return false
	}
	normalized, err := NormalizePath(relativePath)
	if err != nil {
		return false
	}
	payload := buildPayload(scope, pluginID, version, normalized, expiresAt)
	decoded, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(payload))
	return hmac.Equal(mac.Sum(nil), decoded)
}

func (s *Signer) signPayload(payload string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// buildPayload produces the canonical form fed to the HMAC. Its byte-exact
// layout is part of the protocol: pipe-delimited, owner and share present
// as empty strings for global scope.
func buildPayload(scope Scope, pluginID, version, path string, expiresAt int64) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%d|%s",
		scope.Tag, scope.OwnerID, pluginID, version, path, expiresAt, scope.ShareToken)
}

// NormalizePath trims the path, strips repeated "./" prefixes and then a
// single leading "/", and rejects parent references, backslashes and paths that
// normalize to nothing.
func NormalizePath(path string) (string, error) {
	cleaned := strings.TrimSpace(path)
	for strings.HasPrefix(cleaned, "./") {
		cleaned = strings.TrimPrefix(cleaned, "./")
	}
	cleaned = strings.TrimPrefix(cleaned, "/")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return "", fmt.Errorf("asset path %q is empty after normalization: %w", path, types.ErrInvalidInput)
	}
	if strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("asset path %q contains a parent reference: %w", path, types.ErrInvalidInput)
	}
	if strings.Contains(cleaned, `\`) {
		return "", fmt.Errorf("asset path %q contains a backslash: %w", path, types.ErrInvalidInput)
	}
	return cleaned, nil
}
