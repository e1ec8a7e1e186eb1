package httpapi

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cliproxyhub/mtproxy/internal/accountstore"
)

type createProxyKeyRequest struct {
	Name      string `json:"name"`
	ExpiresIn int64  `json:"expires_in_seconds,omitempty"` // 0 = never expires
}

// CreateProxyKey handles POST /v1/proxy-keys: mints a random 32-byte
// base64url token, analogous to the teacher's device-code secrets, and
// persists only its SHA-256 hash (§3: ProxyApiKey).
func (s *Server) CreateProxyKey(c *gin.Context) {
	var req createProxyKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, httpError(http.StatusBadRequest, "invalid JSON body: "+err.Error()))
		return
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		writeError(c, httpError(http.StatusInternalServerError, "generating key: "+err.Error()))
		return
	}
	token := "sk-mtproxy-" + base64.RawURLEncoding.EncodeToString(raw)

	var expiresAt *time.Time
	if req.ExpiresIn > 0 {
		t := time.Now().Add(time.Duration(req.ExpiresIn) * time.Second)
		expiresAt = &t
	}

	key := &accountstore.ProxyApiKey{
		ID:         uuid.NewString(),
		UserID:     userID(c),
		Name:       req.Name,
		KeyPreview: token[:12] + "...",
		HashedKey:  hashProxyKey(token),
		IsActive:   true,
		ExpiresAt:  expiresAt,
		CreatedAt:  time.Now(),
	}
	if err := s.ProxyKeys.Create(requestContext(c), key); err != nil {
		writeError(c, httpError(http.StatusInternalServerError, "persisting key: "+err.Error()))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":         key.ID,
		"name":       key.Name,
		"key":        token, // only ever shown once, at mint time
		"expires_at": key.ExpiresAt,
		"created_at": key.CreatedAt,
	})
}

// ListProxyKeys handles GET /v1/proxy-keys: previews only, never the raw
// token (which is never persisted, only its hash).
func (s *Server) ListProxyKeys(c *gin.Context) {
	keys, err := s.ProxyKeys.ListForUser(requestContext(c), userID(c))
	if err != nil {
		writeError(c, httpError(http.StatusInternalServerError, "listing keys: "+err.Error()))
		return
	}
	out := make([]gin.H, 0, len(keys))
	for _, k := range keys {
		out = append(out, gin.H{
			"id":          k.ID,
			"name":        k.Name,
			"key_preview": k.KeyPreview,
			"is_active":   k.IsActive,
			"expires_at":  k.ExpiresAt,
			"created_at":  k.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

// RevokeProxyKey handles DELETE /v1/proxy-keys/{id}.
func (s *Server) RevokeProxyKey(c *gin.Context) {
	id := c.Param("id")
	if err := s.ProxyKeys.Revoke(requestContext(c), id); err != nil {
		writeError(c, httpError(http.StatusInternalServerError, "revoking key: "+err.Error()))
		return
	}
	c.Status(http.StatusNoContent)
}
