package middlewares

import (
	"context"
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/settlement_backend/utils"
	"github.com/gin-gonic/gin"
)

type authString string

// Session is the actor identity carried by a verified bearer token.
type Session struct {
	UserId      int    `json:"user_id"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	CompanyCode string `json:"company_code"`
}

// AuthMiddleware verifies an optional bearer token and attaches the Session.
// Requests without a token pass through; RequireSession guards routes that need one.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := bearerToken(c.Request)
		if auth == "" {
			c.Next()
			return
		}

		validate, err := utils.JwtValidate(auth)
		if err != nil || !validate.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		customClaim, ok := validate.Claims.(*utils.JwtCustomClaim)
		if !ok || customClaim.ID <= 0 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		session := &Session{
			UserId:      customClaim.ID,
			Name:        customClaim.Name,
			Role:        customClaim.Role,
			CompanyCode: strings.TrimSpace(customClaim.CompanyCode),
		}
		c.Request = c.Request.WithContext(WithSession(c.Request.Context(), session, auth))
		c.Next()
	}
}

// WithSession stores the session and mirrors its fields into the shared context keys
// read by the company scope plugin and the workflows.
func WithSession(ctx context.Context, s *Session, token string) context.Context {
	ctx = context.WithValue(ctx, authString("auth"), s)
	ctx = utils.SetTokenInContext(ctx, token)
	ctx = utils.SetUserIdInContext(ctx, s.UserId)
	ctx = utils.SetUserNameInContext(ctx, s.Name)
	ctx = utils.SetRoleInContext(ctx, s.Role)
	if s.CompanyCode != "" {
		ctx = utils.SetCompanyCodeInContext(ctx, s.CompanyCode)
	}
	return ctx
}

// RequireSession aborts with 401 unless AuthMiddleware attached a session.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := SessionFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(authString("auth")).(*Session)
	return s, ok && s != nil
}

// bearerToken reads "Authorization: Bearer <jwt>" or the legacy "token" header.
func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth != "" {
		const bearer = "bearer "
		if len(auth) > len(bearer) && strings.EqualFold(auth[:len(bearer)], bearer) {
			return strings.TrimSpace(auth[len(bearer):])
		}
		return ""
	}
	return strings.TrimSpace(r.Header.Get("token"))
}
