package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/cppla/winsome/middleware"
	"github.com/cppla/winsome/notify"
	"github.com/cppla/winsome/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// RegisterCallback upgrades the request to a websocket and registers it as the user's
// follower callback. The user must hold a live session.
func (a *App) RegisterCallback(ctx *gin.Context) {
	username := ctx.GetString(middleware.ContextUsernameKey)
	if username == "" || !a.Sessions.Online(username) {
		utils.Respond(ctx, http.StatusUnauthorized, utils.Error(utils.CodeNotLoggedIn, "not logged in"))
		return
	}

	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		utils.Sugar.Warnf("callback upgrade failed user=%s err=%v", username, err)
		return
	}
	cb := notify.NewWSCallback(conn)
	if err := a.Notify.Register(username, cb); err != nil {
		utils.Sugar.Warnf("callback register failed user=%s err=%v", username, err)
		return
	}

	// Clients never send data; reading only drives pong and close handling.
	wait := a.CallbackPongWait
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wait))
	})
	stop := make(chan struct{})
	go keepAlive(cb, wait*9/10, stop)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wait))
	}
	close(stop)
	if a.Notify.Release(username, cb) {
		utils.Sugar.Debugf("callback closed by client user=%s", username)
	}
	_ = cb.Close()
}

// keepAlive pings the callback until stop closes or a ping fails.
func keepAlive(cb *notify.WSCallback, period time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := cb.Ping(); err != nil {
				return
			}
		}
	}
}

// UnregisterCallback drops the user's callback.
func (a *App) UnregisterCallback(ctx *gin.Context) {
	username := ctx.GetString(middleware.ContextUsernameKey)
	if !a.Notify.Unregister(username) {
		utils.Respond(ctx, http.StatusNotFound, utils.Error(-1, "no callback registered"))
		return
	}
	utils.Respond(ctx, http.StatusOK, utils.Success(nil))
}
