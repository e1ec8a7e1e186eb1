// Package oauthflow implements C10: the PKCE auth-code and Device-Code
// orchestrators shared across provider modules.
package oauthflow

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
)

// GeneratePKCE builds a fresh code_verifier/code_challenge pair: a 32-byte
// verifier, base64url-encoded, and its SHA-256 hash, also base64url-encoded,
// per §4.5.
func GeneratePKCE() (verifier, challenge string, err error) {
	buf := make([]byte, 32)
	if _, err = rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("oauthflow: generate verifier: %w", err)
	}
	verifier = base64.RawURLEncoding.EncodeToString(buf)
	sum := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(sum[:])
	return verifier, challenge, nil
}

// ChallengeFromVerifier recomputes the S256 code_challenge for a verifier
// generated earlier by GeneratePKCE, so callers that only persisted the
// verifier (e.g. in session state between auth-start and GetAuthURL) can
// rebuild the challenge without storing it separately.
func ChallengeFromVerifier(verifier string) (string, string, error) {
	if verifier == "" {
		return "", "", fmt.Errorf("oauthflow: empty code_verifier")
	}
	sum := sha256.Sum256([]byte(verifier))
	return verifier, base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

// AuthURLParams are the query parameters every PKCE auth-code flow attaches
// to its provider's authorization endpoint.
type AuthURLParams struct {
	AuthEndpoint string
	ClientID     string
	RedirectURI  string
	Scope        string
	State        string
	Challenge    string
}

// BuildAuthURL assembles the authorization URL with state, access_type=
// offline, prompt=consent, code_challenge_method=S256 — the fixed set of
// query parameters every PKCE provider in this proxy sends.
func BuildAuthURL(p AuthURLParams) string {
	q := url.Values{}
	q.Set("client_id", p.ClientID)
	q.Set("redirect_uri", p.RedirectURI)
	q.Set("response_type", "code")
	q.Set("scope", p.Scope)
	q.Set("state", p.State)
	q.Set("access_type", "offline")
	q.Set("prompt", "consent")
	q.Set("code_challenge", p.Challenge)
	q.Set("code_challenge_method", "S256")
	return p.AuthEndpoint + "?" + q.Encode()
}

// FixedCallbackPort is the OAuth callback port Antigravity and iFlow expect
// (§6 Environment): http://localhost:11451/oauth2callback.
const FixedCallbackPort = 11451

// FixedCallbackRedirectURI is the full fixed redirect URI for providers that
// require it literally instead of a loopback-ephemeral port.
const FixedCallbackRedirectURI = "http://localhost:11451/oauth2callback"
