package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/winsome/store"
	"github.com/cppla/winsome/utils"
)

// Signup registers a new user. Tags are lowercased and deduplicated by the store.
func (a *App) Signup(username, password string, tags []string) utils.H {
	if err := a.Users.Signup(strings.TrimSpace(username), password, tags); err != nil {
		return signupCodes.respond("signup", err)
	}
	utils.Sugar.Infof("user registered user=%s", username)
	return utils.Success(nil)
}

// Login binds the connection to username and returns the multicast group and a callback token.
// Errors are reported in order: unknown user, already logged in, wrong password.
func (a *App) Login(h store.Handle, username, password string) utils.H {
	if !a.Users.Exists(username) {
		return loginCodes.respond("login", store.ErrUserNotFound)
	}
	if a.Sessions.Online(username) {
		return loginCodes.respond("login", store.ErrAlreadyLoggedIn)
	}
	if _, bound := a.Sessions.Owner(h); bound {
		return loginCodes.respond("login", store.ErrConnectionBound)
	}
	if err := a.Users.CheckPassword(username, password); err != nil {
		return loginCodes.respond("login", err)
	}
	if err := a.Sessions.Login(username, h); err != nil {
		return loginCodes.respond("login", err)
	}

	token, claims, err := utils.GenerateToken(a.JWTSecret, username, a.TokenTTL)
	if err != nil {
		a.Sessions.Logout(username, h)
		utils.Sugar.Errorf("issue token failed user=%s err=%v", username, err)
		return utils.Error(utils.CodeServerError, "failed to issue token")
	}
	tok := issuedToken{id: claims.ID, expiresAt: claims.ExpiresAt.Time}
	a.issuedMu.Lock()
	a.issued[username] = tok
	a.issuedMu.Unlock()
	if !a.Authorized(h, username) {
		// the connection dropped after binding and its teardown missed this token
		a.revokeIssued(username, tok)
		return loginCodes.respond("login", store.ErrConnectionClosed)
	}

	utils.Sugar.Infof("user logged in user=%s conn=%s", username, h.ID())
	return utils.Success(utils.H{
		"mcAddress": a.Multicast.Address,
		"mcPort":    a.Multicast.Port,
		"token":     token,
	})
}

// Logout ends the session bound to h and drops the user's callback.
func (a *App) Logout(h store.Handle, username string) utils.H {
	if err := a.Sessions.Logout(username, h); err != nil {
		return logoutCodes.respond("logout", err)
	}
	a.endUserState(username)
	utils.Sugar.Infof("user logged out user=%s", username)
	return utils.Success(nil)
}

// Authorized reports whether username holds a session on h.
func (a *App) Authorized(h store.Handle, username string) bool {
	owner, ok := a.Sessions.Owner(h)
	return ok && owner == username
}

func (a *App) revokeToken(username string) {
	a.issuedMu.Lock()
	tok, ok := a.issued[username]
	delete(a.issued, username)
	a.issuedMu.Unlock()
	if ok {
		a.revoke(tok)
	}
}

// revokeIssued revokes tok and forgets it if it is still username's current token.
func (a *App) revokeIssued(username string, tok issuedToken) {
	a.issuedMu.Lock()
	if a.issued[username] == tok {
		delete(a.issued, username)
	}
	a.issuedMu.Unlock()
	a.revoke(tok)
}

func (a *App) revoke(tok issuedToken) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	a.Tokens.Revoke(ctx, tok.id, tok.expiresAt)
}

// SignupHTTP exposes signup over HTTP for clients that register before connecting.
func (a *App) SignupHTTP(ctx *gin.Context) {
	var req struct {
		Username string   `json:"user" binding:"required"`
		Password string   `json:"password" binding:"required"`
		Tags     []string `json:"tags" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Respond(ctx, http.StatusBadRequest, utils.Error(utils.CodeMalformed, "invalid request payload"))
		return
	}

	resp := a.Signup(req.Username, req.Password, req.Tags)
	status := http.StatusOK
	switch resp["errCode"] {
	case utils.CodeOK:
		status = http.StatusCreated
	case -1:
		status = http.StatusConflict
	case utils.CodeServerError:
		status = http.StatusInternalServerError
	default:
		status = http.StatusBadRequest
	}
	utils.Respond(ctx, status, resp)
}
