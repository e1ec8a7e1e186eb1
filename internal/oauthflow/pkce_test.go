package oauthflow

import (
	"net/url"
	"strings"
	"testing"
)

func TestGeneratePKCEProducesDistinctChallenges(t *testing.T) {
	v1, c1, err := GeneratePKCE()
	if err != nil {
		t.Fatalf("GeneratePKCE: %v", err)
	}
	v2, c2, err := GeneratePKCE()
	if err != nil {
		t.Fatalf("GeneratePKCE: %v", err)
	}
	if v1 == v2 || c1 == c2 {
		t.Fatalf("expected distinct verifier/challenge pairs across calls")
	}
	if strings.ContainsAny(v1, "+/=") || strings.ContainsAny(c1, "+/=") {
		t.Fatalf("expected base64url (no +/=) encoding, got verifier=%q challenge=%q", v1, c1)
	}
}

func TestBuildAuthURLIncludesFixedParams(t *testing.T) {
	raw := BuildAuthURL(AuthURLParams{
		AuthEndpoint: "https://example.com/oauth/authorize",
		ClientID:     "client-123",
		RedirectURI:  FixedCallbackRedirectURI,
		Scope:        "profile email",
		State:        "xyz",
		Challenge:    "chal",
	})
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse built URL: %v", err)
	}
	q := u.Query()
	for k, want := range map[string]string{
		"client_id":             "client-123",
		"redirect_uri":          FixedCallbackRedirectURI,
		"response_type":         "code",
		"scope":                 "profile email",
		"state":                 "xyz",
		"access_type":           "offline",
		"prompt":                "consent",
		"code_challenge":        "chal",
		"code_challenge_method": "S256",
	} {
		if got := q.Get(k); got != want {
			t.Fatalf("param %s: got %q want %q", k, got, want)
		}
	}
}
