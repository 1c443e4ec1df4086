package controllers

import (
	"errors"
	"sync"
	"time"

	"github.com/cppla/winsome/notify"
	"github.com/cppla/winsome/store"
	"github.com/cppla/winsome/utils"
)

// MulticastInfo is handed to clients at login so they can join the reward group.
type MulticastInfo struct {
	Address string
	Port    int
}

// App runs every operation against the shared stores. Each method returns a flat response.
type App struct {
	Users    *store.UserStore
	Graph    *store.GraphStore
	Content  *store.ContentStore
	Sessions *store.Sessions
	Notify   *notify.Registry

	Multicast MulticastInfo
	Rates     utils.RateSource
	Tokens    *utils.TokenBlacklist
	JWTSecret string
	TokenTTL  time.Duration

	// CallbackPongWait is how long a callback socket may stay silent. Pings go out at 9/10 of it.
	CallbackPongWait time.Duration

	issuedMu sync.Mutex
	issued   map[string]issuedToken

	// targetLocks orders graph changes and their events per followed user.
	targetLocks sync.Map
}

type issuedToken struct {
	id        string
	expiresAt time.Time
}

// Options carries the non-store collaborators of an App.
type Options struct {
	Multicast        MulticastInfo
	Rates            utils.RateSource
	Tokens           *utils.TokenBlacklist
	JWTSecret        string
	TokenTTL         time.Duration
	CallbackPongWait time.Duration
}

// NewApp wires fresh stores and a notification registry.
func NewApp(opts Options) *App {
	users := store.NewUserStore()
	graph := store.NewGraphStore(users)
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	if opts.CallbackPongWait <= 0 {
		opts.CallbackPongWait = 60 * time.Second
	}
	if opts.Tokens == nil {
		opts.Tokens = utils.NewTokenBlacklist(nil)
	}
	return &App{
		Users:     users,
		Graph:     graph,
		Content:   store.NewContentStore(nil),
		Sessions:  store.NewSessions(),
		Notify:    notify.NewRegistry(graph),
		Multicast: opts.Multicast,
		Rates:     opts.Rates,
		Tokens:    opts.Tokens,
		JWTSecret: opts.JWTSecret,
		TokenTTL:  opts.TokenTTL,
		issued:    make(map[string]issuedToken),

		CallbackPongWait: opts.CallbackPongWait,
	}
}

// codes maps store errors to the per-operation error codes.
type codes map[error]int

func (c codes) respond(op string, err error) utils.H {
	for target, code := range c {
		if errors.Is(err, target) {
			return utils.Error(code, err.Error())
		}
	}
	utils.Sugar.Errorf("%s failed: %v", op, err)
	return utils.Error(utils.CodeServerError, "internal error")
}

var (
	signupCodes   = codes{store.ErrUserExists: -1, store.ErrInvalidUsername: -2, store.ErrInvalidTags: -3, store.ErrInvalidPassword: -4}
	loginCodes    = codes{store.ErrAlreadyLoggedIn: -1, store.ErrConnectionBound: -1, store.ErrWrongPassword: -2, store.ErrUserNotFound: -3, store.ErrConnectionClosed: utils.CodeServerError}
	logoutCodes   = codes{store.ErrNotLoggedIn: -1}
	followCodes   = codes{store.ErrAlreadyFollowing: -1, store.ErrUserNotFound: -2, store.ErrSelfFollow: -3, store.ErrNoSharedTags: -4}
	unfollowCodes = codes{store.ErrNotFollowing: -1, store.ErrUserNotFound: -2}
	createCodes   = codes{store.ErrInvalidTitle: -1, store.ErrInvalidContent: -2}
	rateCodes     = codes{store.ErrAlreadyVoted: -1, store.ErrNotInFeed: -2, store.ErrOwnPost: -3, store.ErrInvalidVote: -4, store.ErrPostNotFound: -5}
	commentCodes  = codes{store.ErrOwnPost: -1, store.ErrNotInFeed: -2, store.ErrEmptyComment: -3, store.ErrPostNotFound: -4}
	showCodes     = codes{store.ErrNotInFeed: -1, store.ErrPostNotFound: -2}
	deleteCodes   = codes{store.ErrPostNotFound: -1, store.ErrNotOwner: -2}
	rewinCodes    = codes{store.ErrNotInFeed: -1, store.ErrAlreadyRewun: -2, store.ErrOwnPost: -3, store.ErrPostNotFound: -4}
	anyCodes      = codes{store.ErrUserNotFound: -3}
)

// Disconnect tears down whatever the connection was bound to.
func (a *App) Disconnect(h store.Handle) {
	username, ok := a.Sessions.EndByHandle(h)
	if !ok {
		return
	}
	a.endUserState(username)
	utils.Sugar.Infof("session dropped with connection user=%s", username)
}

// endUserState releases the callback and token of a user whose session just ended.
func (a *App) endUserState(username string) {
	a.Notify.Unregister(username)
	a.revokeToken(username)
}
