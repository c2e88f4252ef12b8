package api

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"time"

	"cronos/internal/config"
	"cronos/internal/manager"
	"cronos/internal/messaging"
	"cronos/internal/proxy"
	"cronos/internal/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Sender performs composite sends.
type Sender interface {
	Send(ctx context.Context, req messaging.Request) messaging.Result
}

// History lists past sends.
type History interface {
	RecentSends(ctx context.Context, identity string, limit int) ([]messaging.Result, error)
}

// Health reports liveness and the number of registered sessions.
func Health(mgr *manager.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Service: "cronos", Sessions: mgr.Len()})
	}
}

// ListSessions returns the registry.
func ListSessions(mgr *manager.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, SessionsResponse{Sessions: mgr.Sessions()})
	}
}

// GetSession creates or polls the session of :identity and returns its
// login status. ?use_vpn=true applies to new sessions only.
func GetSession(mgr *manager.Manager, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := c.Param("identity")
		useVPN, _ := strconv.ParseBool(c.Query("use_vpn"))

		_, status, err := mgr.GetSession(c.Request.Context(), identity, useVPN)
		if err != nil {
			code, _ := statusFor(err)
			if code >= http.StatusInternalServerError {
				logger.Error("session request failed", zap.String("identity", identity), zap.Error(err))
			}
			c.JSON(code, status)
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

// GetQRCode serves the last QR capture of :identity.
func GetQRCode(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := c.Param("identity")
		if err := session.ValidateIdentity(identity); err != nil {
			validationError(c, err)
			return
		}
		path := cfg.QRPath(identity)
		if _, err := os.Stat(path); err != nil {
			notFound(c, "qr code")
			return
		}
		c.Header("Cache-Control", "no-store")
		c.File(path)
	}
}

// CloseSession closes :identity. Unknown identities succeed.
func CloseSession(mgr *manager.Manager, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := mgr.CloseSession(c.Param("identity")); err != nil {
			fail(c, logger, "failed to close session", err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// LogoutSession deletes the credentials of :identity.
func LogoutSession(mgr *manager.Manager, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := mgr.LogoutSession(c.Param("identity")); err != nil {
			fail(c, logger, "failed to log out", err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// DestroySession deletes every persisted file of :identity.
func DestroySession(mgr *manager.Manager, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := mgr.DestroySession(c.Param("identity")); err != nil {
			fail(c, logger, "failed to destroy session", err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// ChangeProxy sets the proxy of :identity.
func ChangeProxy(mgr *manager.Manager, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := c.Param("identity")

		var req ProxyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			validationError(c, err)
			return
		}

		if err := mgr.ChangeProxy(c.Request.Context(), identity, req.Proxy); err != nil {
			fail(c, logger, "failed to change proxy", err)
			return
		}
		c.JSON(http.StatusOK, ProxyResponse{Identity: identity, Proxy: req.Proxy})
	}
}

// RotateProxy moves :identity to the next pool entry.
func RotateProxy(mgr *manager.Manager, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := c.Param("identity")
		next, err := mgr.RotateProxy(c.Request.Context(), identity)
		if err != nil {
			fail(c, logger, "failed to rotate proxy", err)
			return
		}
		c.JSON(http.StatusOK, ProxyResponse{Identity: identity, Proxy: next})
	}
}

// SendMessage runs a composite send. The response is 200 whether or not the
// send succeeded; success is in the body.
func SendMessage(sender Sender) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req MessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			validationError(c, err)
			return
		}

		res := sender.Send(c.Request.Context(), req.toRequest())
		c.JSON(http.StatusOK, MessageResponse{
			Success: res.Success,
			ID:      res.ID,
			Step:    string(res.Step),
			Error:   res.Error,
		})
	}
}

// ListMessages returns recent sends. ?session filters, ?limit caps (default 20).
func ListMessages(history History, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 20
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, ErrorResponse{Error: CodeBadRequest, Message: "limit must be a positive integer"})
				return
			}
			limit = n
		}

		sends, err := history.RecentSends(c.Request.Context(), c.Query("session"), limit)
		if err != nil {
			fail(c, logger, "failed to read history", err)
			return
		}

		entries := make([]HistoryEntry, 0, len(sends))
		for _, r := range sends {
			entries = append(entries, HistoryEntry{
				ID:         r.ID,
				Session:    r.Session,
				To:         r.To,
				NonContact: r.NonContact,
				Kinds:      r.Kinds,
				Success:    r.Success,
				Step:       string(r.Step),
				Error:      r.Error,
				StartedAt:  r.StartedAt.Format(time.RFC3339),
				FinishedAt: r.FinishedAt.Format(time.RFC3339),
			})
		}
		c.JSON(http.StatusOK, HistoryResponse{Messages: entries})
	}
}

// ListProxies returns the pool.
func ListProxies(rotator *proxy.Rotator, strategy proxy.Strategy) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, ProxiesResponse{Proxies: rotator.List(), Strategy: string(strategy)})
	}
}

// AddProxy appends an endpoint to the pool.
func AddProxy(rotator *proxy.Rotator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ProxyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			validationError(c, err)
			return
		}
		if err := rotator.Add(req.Proxy); err != nil {
			fail(c, logger, "failed to add proxy", err)
			return
		}
		c.JSON(http.StatusCreated, ProxyResponse{Proxy: req.Proxy})
	}
}

// RemoveProxy removes the first matching endpoint from the pool.
func RemoveProxy(rotator *proxy.Rotator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ProxyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			validationError(c, err)
			return
		}
		if !rotator.Remove(req.Proxy) {
			notFound(c, "proxy")
			return
		}
		c.Status(http.StatusNoContent)
	}
}
