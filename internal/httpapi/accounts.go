package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cliproxyhub/mtproxy/internal/accountstore"
	"github.com/cliproxyhub/mtproxy/internal/oauthflow"
	"github.com/cliproxyhub/mtproxy/internal/provider"
	"github.com/cliproxyhub/mtproxy/internal/registry"
)

// loginRequest is the single body shape covering every step of both OAuth
// surfaces: a bare {} initiates the flow; a PKCE completion supplies
// code/code_verifier/state; a device-code completion supplies device_code
// (SPEC_FULL §4: "thin wiring, no new business logic" over the C7 surface).
type loginRequest struct {
	Code         string    `json:"code,omitempty"`
	CodeVerifier string    `json:"code_verifier,omitempty"`
	State        string    `json:"state,omitempty"`
	DeviceCode   string    `json:"device_code,omitempty"`
	IntervalSecs int       `json:"interval_seconds,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// InitiateLogin handles POST /v1/accounts/{provider}/login. It initiates the
// provider's OAuth surface (PKCE auth URL or device/user code pair) on an
// empty body, and completes it into a persisted Account once the caller
// supplies the code/verifier or device_code back.
func (s *Server) InitiateLogin(c *gin.Context) {
	name := c.Param("provider")
	p, ok := s.Providers.Get(name)
	if !ok {
		writeError(c, httpError(http.StatusNotFound, "unknown provider: "+name))
		return
	}

	var req loginRequest
	_ = c.ShouldBindJSON(&req)

	if dcp, isDeviceCode := p.(provider.DeviceCodeProvider); isDeviceCode {
		s.handleDeviceCodeLogin(c, dcp, name, req)
		return
	}
	s.handlePKCELogin(c, p, name, req)
}

func (s *Server) handlePKCELogin(c *gin.Context, p provider.Provider, name string, req loginRequest) {
	if req.Code == "" {
		verifier, _, err := oauthflow.GeneratePKCE()
		if err != nil {
			writeError(c, httpError(http.StatusInternalServerError, "generating PKCE challenge: "+err.Error()))
			return
		}
		state := uuid.NewString()
		authURL, err := p.GetAuthURL(state, verifier)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"state":         state,
			"code_verifier": verifier,
			"auth_url":      authURL,
		})
		return
	}

	result, err := p.ExchangeCode(requestContext(c), req.Code, "", req.CodeVerifier)
	if err != nil {
		writeError(c, err)
		return
	}
	account := s.persistAccount(c, name, result)
	c.JSON(http.StatusCreated, renderAccount(account))
}

func (s *Server) handleDeviceCodeLogin(c *gin.Context, p provider.DeviceCodeProvider, name string, req loginRequest) {
	if req.DeviceCode == "" {
		init, err := p.InitiateDeviceCode(requestContext(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"device_code":      init.DeviceCode,
			"user_code":        init.UserCode,
			"verification_uri": init.VerificationURI,
			"interval_seconds": int(init.Interval / time.Second),
			"expires_at":       init.ExpiresAt,
		})
		return
	}

	init := &provider.DeviceCodeInit{
		DeviceCode: req.DeviceCode,
		Interval:   time.Duration(req.IntervalSecs) * time.Second,
		ExpiresAt:  req.ExpiresAt,
	}
	result, err := p.PollDeviceCode(requestContext(c), init)
	if err != nil {
		writeError(c, err)
		return
	}
	account := s.persistAccount(c, name, result)
	c.JSON(http.StatusCreated, renderAccount(account))
}

func (s *Server) persistAccount(c *gin.Context, providerName string, result *provider.OAuthResult) *accountstore.Account {
	account := &accountstore.Account{
		ID:           uuid.NewString(),
		UserID:       userID(c),
		Provider:     providerName,
		Email:        result.Email,
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresAt:    result.ExpiresAt,
		IsActive:     true,
		ProjectID:    result.ProjectID,
		Tier:         result.Tier,
		APIKey:       result.APIKey,
		AccountID:    result.AccountID,
		WorkspaceID:  result.WorkspaceID,
		CreatedAt:    time.Now(),
	}
	if err := s.Accounts.Create(requestContext(c), account); err != nil {
		writeError(c, httpError(http.StatusInternalServerError, "persisting account: "+err.Error()))
		return account
	}
	if p, ok := s.Providers.Get(providerName); ok {
		s.Models.RegisterClient(account.ID, providerName, modelsForProvider(p))
	}
	return account
}

// ListAccounts handles GET /v1/accounts: every active account linked for
// the caller's userID, across every provider.
func (s *Server) ListAccounts(c *gin.Context) {
	uid := userID(c)
	var out []gin.H
	for _, name := range s.Providers.Names() {
		accounts, err := s.Accounts.ListActive(requestContext(c), uid, name)
		if err != nil {
			continue
		}
		for _, a := range accounts {
			out = append(out, renderAccount(a))
		}
	}
	if out == nil {
		out = []gin.H{}
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

// DeleteAccount handles DELETE /v1/accounts/{id}: the account row is
// destroyed only by this explicit user action (§3 invariant).
func (s *Server) DeleteAccount(c *gin.Context) {
	id := c.Param("id")
	account, err := s.Accounts.Get(requestContext(c), id)
	if err != nil || account == nil || account.UserID != userID(c) {
		writeError(c, httpError(http.StatusNotFound, "account not found"))
		return
	}
	if err := s.Accounts.Delete(requestContext(c), id); err != nil {
		writeError(c, httpError(http.StatusInternalServerError, "deleting account: "+err.Error()))
		return
	}
	s.Models.UnregisterClient(id)
	c.Status(http.StatusNoContent)
}

func modelsForProvider(p provider.Provider) []*registry.ModelInfo {
	return registry.ModelsFromSupported(p.Config().SupportedModels, p.Config().Name)
}

func renderAccount(a *accountstore.Account) gin.H {
	return gin.H{
		"id":         a.ID,
		"provider":   a.Provider,
		"email":      a.Email,
		"is_active":  a.IsActive,
		"expires_at": a.ExpiresAt,
		"created_at": a.CreatedAt,
	}
}
