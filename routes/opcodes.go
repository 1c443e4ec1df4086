package routes

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cppla/winsome/controllers"
	"github.com/cppla/winsome/server"
	"github.com/cppla/winsome/store"
	"github.com/cppla/winsome/utils"
)

// Request opcodes. The numbering is part of the wire protocol.
const (
	OpSignup = iota
	OpLogin
	OpLogout
	OpListUsers
	OpFollow
	OpUnfollow
	OpListFollowing
	OpCreatePost
	OpShowBlog
	OpShowFeed
	OpRatePost
	OpCommentPost
	OpShowPost
	OpDeletePost
	OpRewinPost
	OpWallet
	OpWalletBtc
	OpListFollowers
)

const rateFetchTimeout = 5 * time.Second

// payload holds every op-specific request field.
type payload struct {
	Password    string   `json:"password"`
	Tags        []string `json:"tags"`
	ToFollow    string   `json:"toFollow"`
	ToUnfollow  string   `json:"toUnfollow"`
	PostTitle   string   `json:"postTitle"`
	PostContent string   `json:"postContent"`
	Post        int64    `json:"post"`
	Value       int      `json:"value"`
	Comment     string   `json:"comment"`
}

// OpRouter dispatches framed TCP requests to the App by opcode.
type OpRouter struct {
	app *controllers.App
}

func NewOpRouter(app *controllers.App) *OpRouter {
	return &OpRouter{app: app}
}

// Serve implements server.Handler.
func (r *OpRouter) Serve(req *server.Request) []byte {
	return r.Handle(req.Conn, req.Op, req.User, req.Body)
}

// Handle runs one operation for the connection h and returns the encoded response.
func (r *OpRouter) Handle(h store.Handle, op int, user string, body []byte) []byte {
	return encode(r.route(h, op, user, body))
}

func (r *OpRouter) route(h store.Handle, op int, user string, body []byte) utils.H {
	if op < OpSignup || op > OpListFollowers {
		return utils.Error(utils.CodeUnknownOp, "unknown operation")
	}
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return utils.Error(utils.CodeMalformed, "malformed request")
	}

	a := r.app
	switch op {
	case OpSignup:
		return a.Signup(user, p.Password, p.Tags)
	case OpLogin:
		return a.Login(h, user, p.Password)
	}
	if !a.Authorized(h, user) {
		return utils.Error(utils.CodeNotLoggedIn, "not logged in")
	}

	switch op {
	case OpLogout:
		return a.Logout(h, user)
	case OpListUsers:
		return a.ListUsers(user)
	case OpFollow:
		return a.Follow(user, p.ToFollow)
	case OpUnfollow:
		return a.Unfollow(user, p.ToUnfollow)
	case OpListFollowing:
		return a.ListFollowing(user)
	case OpListFollowers:
		return a.ListFollowers(user)
	case OpCreatePost:
		return a.CreatePost(user, p.PostTitle, p.PostContent)
	case OpShowBlog:
		return a.ViewBlog(user)
	case OpShowFeed:
		return a.ViewFeed(user)
	case OpRatePost:
		return a.RatePost(user, p.Post, p.Value)
	case OpCommentPost:
		return a.AddComment(user, p.Post, p.Comment)
	case OpShowPost:
		return a.ShowPost(user, p.Post)
	case OpDeletePost:
		return a.DeletePost(user, p.Post)
	case OpRewinPost:
		return a.RewinPost(user, p.Post)
	case OpWallet:
		return a.Wallet(user)
	case OpWalletBtc:
		ctx, cancel := context.WithTimeout(context.Background(), rateFetchTimeout)
		defer cancel()
		return a.WalletBtc(ctx, user)
	}
	return utils.Error(utils.CodeUnknownOp, "unknown operation")
}

func encode(h utils.H) []byte {
	b, err := json.Marshal(h)
	if err != nil {
		utils.Sugar.Errorf("encode response failed: %v", err)
		b, _ = json.Marshal(utils.Error(utils.CodeServerError, "internal error"))
	}
	return b
}
