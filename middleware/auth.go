package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/winsome/utils"
)

const (
	// ContextUsernameKey stores the username inside Gin context.
	ContextUsernameKey = "username"
	// ContextTokenIDKey stores the token id (jti) inside Gin context.
	ContextTokenIDKey = "token_id"
)

// AuthRequired ensures the request carries a valid login token, either as a bearer
// header or, for websocket clients that cannot set headers, as the token query parameter.
func AuthRequired(secret string, blacklist *utils.TokenBlacklist) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenString, ok := bearerToken(ctx)
		if !ok {
			utils.Respond(ctx, http.StatusUnauthorized, utils.Error(utils.CodeNotLoggedIn, "authorization missing"))
			ctx.Abort()
			return
		}

		claims, err := utils.ParseToken(secret, tokenString)
		if err != nil {
			utils.Respond(ctx, http.StatusUnauthorized, utils.Error(utils.CodeNotLoggedIn, "invalid token"))
			ctx.Abort()
			return
		}

		if blacklist != nil && blacklist.Revoked(ctx.Request.Context(), claims.ID) {
			utils.Respond(ctx, http.StatusUnauthorized, utils.Error(utils.CodeNotLoggedIn, "token revoked"))
			ctx.Abort()
			return
		}

		ctx.Set(ContextUsernameKey, claims.Username)
		ctx.Set(ContextTokenIDKey, claims.ID)
		ctx.Next()
	}
}

func bearerToken(ctx *gin.Context) (string, bool) {
	if authHeader := ctx.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", false
		}
		tok := strings.TrimSpace(parts[1])
		return tok, tok != ""
	}
	tok := strings.TrimSpace(ctx.Query("token"))
	return tok, tok != ""
}
