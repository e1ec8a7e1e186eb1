package oauthflow

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestPollDeviceCodePendingThenAuthorized(t *testing.T) {
	dc := &DeviceCodeResponse{DeviceCode: "d1", UserCode: "ABCD", ExpiresIn: 600, Interval: 0}

	calls := 0
	poller := func(_ context.Context, deviceCode string) (*http.Response, []byte, error) {
		calls++
		if deviceCode != "d1" {
			t.Fatalf("unexpected device code: %s", deviceCode)
		}
		if calls <= 2 {
			return &http.Response{StatusCode: 403}, []byte(`{"error":{"code":"deviceauth_authorization_unknown"}}`), nil
		}
		return &http.Response{StatusCode: 200}, []byte(`{"authorization_code":"c","code_verifier":"v","access_token":"at","refresh_token":"rt","expires_in":3600}`), nil
	}

	start := time.Now()
	result := PollDeviceCode(context.Background(), dc, poller)
	elapsed := time.Since(start)

	if result.Outcome != PollAuthorized {
		t.Fatalf("expected PollAuthorized, got %v (err=%v)", result.Outcome, result.Err)
	}
	if result.AccessToken != "at" {
		t.Fatalf("expected access token 'at', got %q", result.AccessToken)
	}
	if calls != 3 {
		t.Fatalf("expected exactly 3 poll calls (2 pending + 1 success), got %d", calls)
	}
	// default interval floor of 5s was used for all three sleeps.
	if elapsed < 3*time.Second {
		t.Fatalf("expected polling to respect the >=5s interval floor, elapsed=%v", elapsed)
	}
}

func TestPollDeviceCodeDenied(t *testing.T) {
	dc := &DeviceCodeResponse{DeviceCode: "d2", ExpiresIn: 600, Interval: 1}
	poller := func(context.Context, string) (*http.Response, []byte, error) {
		return &http.Response{StatusCode: 400}, []byte(`{"error":"access_denied"}`), nil
	}
	result := PollDeviceCode(context.Background(), dc, poller)
	if result.Outcome != PollDenied {
		t.Fatalf("expected PollDenied, got %v", result.Outcome)
	}
}

func TestPollDeviceCodeExpired(t *testing.T) {
	dc := &DeviceCodeResponse{DeviceCode: "d3", ExpiresIn: 600, Interval: 1}
	poller := func(context.Context, string) (*http.Response, []byte, error) {
		return &http.Response{StatusCode: 400}, []byte(`{"error":"expired_token"}`), nil
	}
	result := PollDeviceCode(context.Background(), dc, poller)
	if result.Outcome != PollExpired {
		t.Fatalf("expected PollExpired, got %v", result.Outcome)
	}
}
