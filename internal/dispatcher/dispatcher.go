// Package dispatcher implements C9: it accepts an already-authenticated
// proxy request, resolves the target provider(s) from the requested model,
// selects a healthy account, invokes the provider, and retries across
// accounts on rate-limit or retryable upstream failures — grounded in the
// teacher's `sdk/api/handlers/handlers.go` request-dispatch loop
// (`getRequestDetails` / `ExecuteWithAuthManager` / `ExecuteStreamWithAuthManager`).
package dispatcher

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cliproxyhub/mtproxy/internal/accountstore"
	"github.com/cliproxyhub/mtproxy/internal/convert/common"
	"github.com/cliproxyhub/mtproxy/internal/provider"
	"github.com/cliproxyhub/mtproxy/internal/ratelimit"
	"github.com/cliproxyhub/mtproxy/internal/registry"
)

// Request is the dispatcher's view of an inbound proxy call: enough to pick
// a provider/account and hand off to Provider.MakeRequest.
type Request struct {
	UserID  string
	Model   string
	Body    []byte
	Stream  bool
	Headers map[string]string
}

// Config tunes the dispatcher's retry policy.
type Config struct {
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultConfig matches §4.6's exponential-backoff description: baseMs *
// 2^(attempt-1), capped at 1 hour.
func DefaultConfig() Config {
	return Config{MaxRetries: 4, BaseBackoff: time.Second, MaxBackoff: time.Hour}
}

// Dispatcher wires together the provider registry (C8), account repository
// (C2), and rate-limit registry (C3) to perform the §4.6 account-selection
// and retry loop.
type Dispatcher struct {
	Providers  *registry.ProviderRegistry
	Accounts   accountstore.Repository
	RateLimits *ratelimit.Registry
	Config     Config
}

// New builds a Dispatcher with the given collaborators and default retry
// config.
func New(providers *registry.ProviderRegistry, accounts accountstore.Repository, limits *ratelimit.Registry) *Dispatcher {
	return &Dispatcher{Providers: providers, Accounts: accounts, RateLimits: limits, Config: DefaultConfig()}
}

// SplitModelPrefix strips an optional "<provider>/" prefix from a requested
// model id, returning the bare model and the explicit provider name (empty
// if no prefix was present).
func SplitModelPrefix(requested string) (providerName, bareModel string) {
	if idx := strings.IndexByte(requested, '/'); idx > 0 {
		candidate := registry.NormalizeName(requested[:idx])
		return candidate, requested[idx+1:]
	}
	return "", requested
}

// Dispatch performs the full §4.6 account-selection and retry loop,
// returning the upstream Response (streamed straight through on success).
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (*provider.Response, error) {
	explicitProvider, bareModel := SplitModelPrefix(req.Model)

	candidates := d.candidateProviders(explicitProvider, bareModel)
	if len(candidates) == 0 {
		return nil, common.NewError(common.KindInvalidRequest, "dispatcher: no provider claims model "+bareModel)
	}

	family := ratelimit.ModelFamily(bareModel)

	var lastErr error
	attempt := 0
	for _, p := range candidates {
		accounts, err := d.healthyAccounts(ctx, req.UserID, p.Config().Name, family)
		if err != nil {
			lastErr = err
			continue
		}
		if len(accounts) == 0 {
			continue
		}

		for _, acct := range accounts {
			attempt++
			resp, err := d.callOnce(ctx, p, acct, req, family)
			if err == nil {
				return resp, nil
			}
			lastErr = err

			pe, ok := err.(*common.ProxyError)
			if !ok {
				continue
			}
			switch pe.Kind {
			case common.KindRateLimited:
				continue // next account, no sleep: MarkRateLimited already recorded the delay.
			case common.KindUpstreamTransient:
				if attempt >= d.Config.MaxRetries {
					return nil, lastErr
				}
				d.sleepBackoff(ctx, attempt)
				continue
			default:
				// 4xx non-retryable: abandon immediately per §4.6 step 6.
				return nil, lastErr
			}
		}
	}

	if lastErr == nil {
		wait := d.minWaitAcrossCandidates(candidates, req.UserID, family)
		return nil, common.NewError(common.KindQuotaExhausted, "dispatcher: no healthy account available for "+bareModel).WithRetryAfter(wait)
	}
	return nil, lastErr
}

func (d *Dispatcher) candidateProviders(explicitProvider, bareModel string) []provider.Provider {
	if explicitProvider != "" {
		if p, ok := d.Providers.Get(explicitProvider); ok {
			return []provider.Provider{p}
		}
		return nil
	}
	return d.Providers.ProvidersForModel(bareModel)
}

// healthyAccounts lists active accounts for (user, provider) and filters out
// ones rate-limited for family, ordered round-robin by creation time (oldest
// first; deterministic under ties by id).
func (d *Dispatcher) healthyAccounts(ctx context.Context, userID, providerName, family string) ([]*accountstore.Account, error) {
	all, err := d.Accounts.ListActive(ctx, userID, providerName)
	if err != nil {
		return nil, err
	}
	var healthy []*accountstore.Account
	for _, a := range all {
		if d.RateLimits.IsRateLimited(a.ID, family) {
			continue
		}
		healthy = append(healthy, a)
	}
	sort.Slice(healthy, func(i, j int) bool {
		if healthy[i].CreatedAt.Equal(healthy[j].CreatedAt) {
			return healthy[i].ID < healthy[j].ID
		}
		return healthy[i].CreatedAt.Before(healthy[j].CreatedAt)
	})
	return healthy, nil
}

func (d *Dispatcher) minWaitAcrossCandidates(candidates []provider.Provider, userID, family string) time.Duration {
	var ids []string
	for _, p := range candidates {
		accts, err := d.Accounts.ListActive(context.Background(), userID, p.Config().Name)
		if err != nil {
			continue
		}
		for _, a := range accts {
			ids = append(ids, a.ID)
		}
	}
	return d.RateLimits.GetMinWaitTime(ids, family)
}

func (d *Dispatcher) callOnce(ctx context.Context, p provider.Provider, acct *accountstore.Account, req *Request, family string) (*provider.Response, error) {
	logrus.WithFields(logrus.Fields{
		"provider": p.Config().Name,
		"account":  acct.ID,
		"model":    req.Model,
	}).Debug("dispatcher: attempting upstream call")

	cred, err := p.GetValidCredentials(ctx, acct, d.Accounts)
	if err != nil {
		return nil, err
	}

	body := req.Body
	if body2 := p.PrepareRequest(ctx, acct, body, req.Model); body2 != nil {
		body = body2
	}

	resp, err := p.MakeRequest(ctx, cred, acct, body, req.Stream)
	if err == nil {
		return resp, nil
	}

	pe, ok := err.(*common.ProxyError)
	if !ok {
		return nil, err
	}
	if pe.Kind == common.KindRateLimited {
		retryAfterMs, message := ratelimit.ParseRateLimitError(pe.Body)
		if retryAfterMs == 0 && pe.Headers != nil {
			if ms, ok := ratelimit.ParseRetryAfterMs(pe.Headers); ok {
				retryAfterMs = ms
			}
		}
		d.RateLimits.MarkRateLimited(acct.ID, family, retryAfterMs, req.Model, message)
	}
	return nil, pe
}

func (d *Dispatcher) sleepBackoff(ctx context.Context, attempt int) {
	backoff := time.Duration(float64(d.Config.BaseBackoff) * math.Pow(2, float64(attempt-1)))
	if backoff > d.Config.MaxBackoff {
		backoff = d.Config.MaxBackoff
	}
	select {
	case <-ctx.Done():
	case <-time.After(backoff):
	}
}
