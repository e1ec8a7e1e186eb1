package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/cliproxyhub/mtproxy/internal/accountstore"
	"github.com/cliproxyhub/mtproxy/internal/config"
	"github.com/cliproxyhub/mtproxy/internal/dispatcher"
	"github.com/cliproxyhub/mtproxy/internal/registry"
)

// Server holds the collaborators every handler needs: the dispatcher (C9),
// the model catalogue (C8), the two repositories backing the CRUD surface
// (C2, proxy keys), and the live config (streaming keep-alive settings,
// §1 AMBIENT STACK).
type Server struct {
	Dispatcher *dispatcher.Dispatcher
	Models     *registry.ModelRegistry
	Providers  *registry.ProviderRegistry
	Accounts   accountstore.Repository
	ProxyKeys  accountstore.ProxyKeyRepository
	Cfg        *config.Config
}

// NewServer builds a Server. Cfg may be updated in place by the config
// hot-reload watcher; handlers always read through the pointer.
func NewServer(cfg *config.Config, disp *dispatcher.Dispatcher, models *registry.ModelRegistry, providers *registry.ProviderRegistry, accounts accountstore.Repository, proxyKeys accountstore.ProxyKeyRepository) *Server {
	return &Server{Dispatcher: disp, Models: models, Providers: providers, Accounts: accounts, ProxyKeys: proxyKeys, Cfg: cfg}
}

// Router builds the gin engine with every route registered and the
// proxy-key auth middleware applied to the inbound completion endpoints.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestIDMiddleware())

	v1 := r.Group("/v1")
	v1.Use(s.authMiddleware())
	{
		v1.POST("/chat/completions", s.ChatCompletions)
		v1.POST("/messages", s.Messages)
		v1.GET("/models", s.ListModels)
		v1.POST("/accounts/:provider/login", s.InitiateLogin)
		v1.GET("/accounts", s.ListAccounts)
		v1.DELETE("/accounts/:id", s.DeleteAccount)
		v1.POST("/proxy-keys", s.CreateProxyKey)
		v1.GET("/proxy-keys", s.ListProxyKeys)
		v1.DELETE("/proxy-keys/:id", s.RevokeProxyKey)
	}
	return r
}

// requestIDMiddleware stamps every request with an X-Request-Id, generating
// one when the caller didn't supply it, matching the teacher's idempotency
// key propagation in sdk/api/handlers/handlers.go.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader("X-Request-Id"))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("requestID", id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

// authMiddleware resolves the caller's proxy key from Authorization: Bearer
// or x-api-key (§6), hashes it, and looks it up against the ProxyKey
// repository; the resolved userID drives account selection in the
// dispatcher (§4.6).
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerOrHeader(c)
		if raw == "" {
			writeError(c, unauthorized("missing API key"))
			c.Abort()
			return
		}
		hashed := hashProxyKey(raw)
		key, err := s.ProxyKeys.FindByHashedKey(c.Request.Context(), hashed)
		if err != nil || key == nil || !key.IsActive {
			writeError(c, unauthorized("invalid API key"))
			c.Abort()
			return
		}
		if key.ExpiresAt != nil && time.Now().After(*key.ExpiresAt) {
			writeError(c, unauthorized("API key expired"))
			c.Abort()
			return
		}
		c.Set("userID", key.UserID)
		c.Next()
	}
}

func bearerOrHeader(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		if rest, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(rest)
		}
	}
	return strings.TrimSpace(c.GetHeader("x-api-key"))
}

// hashProxyKey digests a caller-presented key before it ever touches the
// repository lookup; only the hash is persisted or compared.
func hashProxyKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func requestContext(c *gin.Context) context.Context {
	return context.WithValue(c.Request.Context(), "gin", c)
}

func unauthorized(msg string) error {
	return httpError(http.StatusUnauthorized, msg)
}

func httpError(status int, msg string) error {
	return &statusErr{status: status, msg: msg}
}

type statusErr struct {
	status int
	msg    string
}

func (e *statusErr) Error() string   { return e.msg }
func (e *statusErr) StatusCode() int { return e.status }

func logRequest(c *gin.Context, fields log.Fields) {
	fields["request_id"], _ = c.Get("requestID")
	log.WithFields(fields).Debug("httpapi: handled request")
}
