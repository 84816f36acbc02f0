package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"fedaidash/internal/auth"
	"fedaidash/internal/core"
)

type loginRequest struct {
	Password string `json:"password"`
}

func (s *Server) login(c *gin.Context) {
	if s.auth == nil {
		writeError(c, http.StatusServiceUnavailable, "admin login disabled")
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	sess, err := s.auth.Login(c.Request.Context(), c.ClientIP(), req.Password)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrRateLimited):
		writeError(c, http.StatusTooManyRequests, "too many login attempts")
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(c, http.StatusUnauthorized, "invalid credentials")
		return
	case errors.Is(err, auth.ErrNotConfigured):
		writeError(c, http.StatusServiceUnavailable, "admin login disabled")
		return
	default:
		s.logger.Error("login failed", "error", err)
		writeError(c, http.StatusInternalServerError, core.MsgRequestFailed)
		return
	}
	maxAge := int(s.auth.TTL().Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, sess.Token, maxAge, "/", "", s.secureCookies, true)
	c.JSON(http.StatusOK, gin.H{"success": true, "expires_at": sess.ExpiresAt})
}

func (s *Server) logout(c *gin.Context) {
	if token := sessionToken(c); token != "" && s.auth != nil {
		s.auth.Logout(token)
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, "", -1, "/", "", s.secureCookies, true)
	c.JSON(http.StatusOK, core.ActionResult{Success: true})
}

func (s *Server) session(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"authenticated": true})
}

// sessionToken reads the session cookie, falling back to a bearer token.
func sessionToken(c *gin.Context) string {
	if token, err := c.Cookie(SessionCookie); err == nil && token != "" {
		return token
	}
	header := c.GetHeader("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// requireSession rejects requests without a live session and forwards the
// token to the service authorizer through the request context.
func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := sessionToken(c)
		if s.auth == nil || !s.auth.Valid(token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, core.ActionResult{Error: core.MsgUnauthorized})
			return
		}
		c.Request = c.Request.WithContext(auth.WithToken(c.Request.Context(), token))
		c.Next()
	}
}

// resultStatus picks the status code for an action result.
func resultStatus(res core.ActionResult, success int) int {
	switch {
	case res.Success:
		return success
	case res.Error == core.MsgUnauthorized:
		return http.StatusUnauthorized
	case res.Error == core.MsgNotFound:
		return http.StatusNotFound
	case strings.HasPrefix(res.Error, "invalid input"):
		return http.StatusBadRequest
	case strings.HasPrefix(res.Error, "transaction blocked"), res.Error == core.MsgConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeResult(c *gin.Context, res core.ActionResult, success int) {
	c.JSON(resultStatus(res, success), res)
}

// bindInput decodes a JSON body into dst, answering 400 on failure.
func bindInput(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, core.ActionResult{Error: "invalid input: body"})
		return false
	}
	return true
}

func (s *Server) createProfile(c *gin.Context) {
	var in core.ProfileInput
	if !bindInput(c, &in) {
		return
	}
	writeResult(c, s.svc.CreateProfile(c.Request.Context(), in), http.StatusCreated)
}

func (s *Server) updateProfile(c *gin.Context) {
	var in core.ProfileInput
	if !bindInput(c, &in) {
		return
	}
	writeResult(c, s.svc.UpdateProfile(c.Request.Context(), c.Param("id"), in), http.StatusOK)
}

func (s *Server) deleteProfile(c *gin.Context) {
	writeResult(c, s.svc.DeleteProfile(c.Request.Context(), c.Param("id")), http.StatusOK)
}

func (s *Server) createTool(c *gin.Context) {
	var in core.ToolInput
	if !bindInput(c, &in) {
		return
	}
	writeResult(c, s.svc.CreateTool(c.Request.Context(), in), http.StatusCreated)
}

func (s *Server) updateTool(c *gin.Context) {
	var in core.ToolInput
	if !bindInput(c, &in) {
		return
	}
	writeResult(c, s.svc.UpdateTool(c.Request.Context(), c.Param("id"), in), http.StatusOK)
}

func (s *Server) deleteTool(c *gin.Context) {
	writeResult(c, s.svc.DeleteTool(c.Request.Context(), c.Param("id")), http.StatusOK)
}

func (s *Server) reviewProduct(c *gin.Context) {
	writeResult(c, s.svc.MarkProductReviewed(c.Request.Context(), c.Param("id")), http.StatusOK)
}

func (s *Server) archiveExport(c *gin.Context) {
	var req core.ArchiveRequest
	if !bindInput(c, &req) {
		return
	}
	writeResult(c, s.svc.ArchiveExport(c.Request.Context(), req), http.StatusCreated)
}
