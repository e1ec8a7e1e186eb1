package copilot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/imroc/req/v3"

	"github.com/cliproxyhub/mtproxy/internal/accountstore"
	"github.com/cliproxyhub/mtproxy/internal/provider/passthrough"
)

// TestAgentWindowHeaderPairing covers §4.1 item 6: the window-opening
// request must get neither the synthetic tool-call injection nor the
// x-initiator header, while the very next request (still inside the
// window) must get both.
func TestAgentWindowHeaderPairing(t *testing.T) {
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("x-initiator")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	p := &Provider{
		clientID:  defaultClientID,
		client:    passthrough.NewClient(srv.URL),
		http:      req.C(),
		windows:   make(map[string]time.Time),
		headerDue: make(map[string]bool),
	}
	acct := &accountstore.Account{ID: "acct-1"}
	body := []byte(`{"model":"gpt-5","messages":[{"role":"user","content":"hi"}]}`)

	if out := p.PrepareRequest(context.Background(), acct, body, ""); out != nil {
		t.Fatalf("expected no synthetic injection on the window-opening request")
	}
	if _, err := p.MakeRequest(context.Background(), "tok", acct, body, false); err != nil {
		t.Fatalf("MakeRequest: %v", err)
	}
	if gotHeader != "" {
		t.Fatalf("expected no x-initiator header on the window-opening request, got %q", gotHeader)
	}

	out := p.PrepareRequest(context.Background(), acct, body, "")
	if out == nil {
		t.Fatalf("expected synthetic injection on the second request inside the window")
	}
	if _, err := p.MakeRequest(context.Background(), "tok", acct, out, false); err != nil {
		t.Fatalf("MakeRequest: %v", err)
	}
	if gotHeader != "agent" {
		t.Fatalf("expected x-initiator: agent on the second request, got %q", gotHeader)
	}
}
