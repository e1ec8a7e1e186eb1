package oauthflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DeviceCodeResponse is the initial POST-to-device-endpoint result.
type DeviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

// PollOutcome is the exhaustive result of one device-code polling loop,
// matching §9's "Pending | Authorized | Denied | Expired | TransportError"
// design note.
type PollOutcome int

const (
	PollPending PollOutcome = iota
	PollAuthorized
	PollDenied
	PollExpired
	PollTransportError
)

// PollResult carries the outcome plus whatever the success/failure path
// produced.
type PollResult struct {
	Outcome      PollOutcome
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
	SlowDown     bool
	Err          error
}

// TokenPoller issues one poll request and classifies the response. Providers
// supply this so PollDeviceCode can stay provider-agnostic; it is also where
// Codex's "device authorization unknown" 403/404 special case is folded into
// Pending (scenario 5, §8).
type TokenPoller func(ctx context.Context, deviceCode string) (*http.Response, []byte, error)

// knownPendingErrors are the `error` field values every provider in this
// proxy's closed set uses to mean "keep polling".
var knownPendingErrors = map[string]bool{
	"authorization_pending":            true,
	"slow_down":                        true,
	"deviceauth_authorization_unknown": true,
}

var knownDeniedErrors = map[string]bool{
	"access_denied": true,
}

var knownExpiredErrors = map[string]bool{
	"expired_token": true,
}

// classifyPollResponse inspects one HTTP poll response and decides whether
// it represents Pending, Denied, Expired, Authorized, or an unrecoverable
// transport/protocol failure.
func classifyPollResponse(resp *http.Response, body []byte) PollResult {
	// Codex-specific: 403/404 "device authorization unknown" is treated as
	// pending, not denied, per §4.5 and the scenario-5 test.
	if resp.StatusCode == 403 || resp.StatusCode == 404 {
		var errBody struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(body, &errBody) == nil && strings.Contains(errBody.Error.Code, "authorization_unknown") {
			return PollResult{Outcome: PollPending}
		}
	}

	var tokenResp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		Error        string `json:"error"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		// Some providers answer with url-encoded form bodies instead of
		// JSON on error; fall back to a raw scan for the error token.
		s := string(body)
		switch {
		case strings.Contains(s, "authorization_pending"):
			return PollResult{Outcome: PollPending}
		case strings.Contains(s, "slow_down"):
			return PollResult{Outcome: PollPending, SlowDown: true}
		case strings.Contains(s, "access_denied"):
			return PollResult{Outcome: PollDenied}
		case strings.Contains(s, "expired_token"):
			return PollResult{Outcome: PollExpired}
		}
		return PollResult{Outcome: PollTransportError, Err: fmt.Errorf("oauthflow: unparseable poll response: %w", err)}
	}

	if tokenResp.Error != "" {
		switch {
		case tokenResp.Error == "slow_down":
			return PollResult{Outcome: PollPending, SlowDown: true}
		case knownPendingErrors[tokenResp.Error]:
			return PollResult{Outcome: PollPending}
		case knownDeniedErrors[tokenResp.Error]:
			return PollResult{Outcome: PollDenied}
		case knownExpiredErrors[tokenResp.Error]:
			return PollResult{Outcome: PollExpired}
		default:
			return PollResult{Outcome: PollTransportError, Err: fmt.Errorf("oauthflow: device poll error %q", tokenResp.Error)}
		}
	}

	if tokenResp.AccessToken == "" {
		return PollResult{Outcome: PollTransportError, Err: fmt.Errorf("oauthflow: device poll succeeded with no access_token")}
	}
	return PollResult{
		Outcome:      PollAuthorized,
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		ExpiresIn:    tokenResp.ExpiresIn,
	}
}

// PollDeviceCode runs the bounded polling loop described in §4.5/§9: sleeps
// `interval` seconds between attempts (incrementing on slow_down, matching
// the teacher's copilot auth flow), never faster than the server-specified
// interval, and returns as soon as a terminal outcome is reached or the
// device code's own expiry passes.
func PollDeviceCode(ctx context.Context, dc *DeviceCodeResponse, poll TokenPoller) PollResult {
	interval := time.Duration(dc.Interval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	deadline := time.Now().Add(time.Duration(dc.ExpiresIn) * time.Second)

	for {
		select {
		case <-ctx.Done():
			return PollResult{Outcome: PollTransportError, Err: ctx.Err()}
		case <-time.After(interval):
		}

		if time.Now().After(deadline) {
			return PollResult{Outcome: PollExpired}
		}

		resp, body, err := poll(ctx, dc.DeviceCode)
		if err != nil {
			return PollResult{Outcome: PollTransportError, Err: err}
		}
		result := classifyPollResponse(resp, body)
		switch result.Outcome {
		case PollPending:
			if result.SlowDown || resp.StatusCode == 429 {
				interval += 5 * time.Second
			}
			continue
		default:
			return result
		}
	}
}

// DrainBody reads and closes an HTTP response body, returning its bytes.
func DrainBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
