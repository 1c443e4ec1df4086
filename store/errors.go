package store

import "errors"

var (
	ErrUserExists       = errors.New("username already taken")
	ErrInvalidUsername  = errors.New("username must be 1 to 15 letters, digits or underscores")
	ErrInvalidTags      = errors.New("between 1 and 5 tags are required")
	ErrInvalidPassword  = errors.New("password must be 1 to 72 bytes")
	ErrUserNotFound     = errors.New("user not found")
	ErrWrongPassword    = errors.New("wrong password")
	ErrAlreadyLoggedIn  = errors.New("user already logged in")
	ErrConnectionBound  = errors.New("connection already bound to another user")
	ErrConnectionClosed = errors.New("connection closed")
	ErrNotLoggedIn      = errors.New("user not logged in")
	ErrAlreadyFollowing = errors.New("already following user")
	ErrSelfFollow       = errors.New("cannot follow yourself")
	ErrNoSharedTags     = errors.New("no shared interest with user")
	ErrNotFollowing     = errors.New("not following user")
	ErrPostNotFound     = errors.New("post not found")
	ErrInvalidTitle     = errors.New("title must be 1 to 20 characters")
	ErrInvalidContent   = errors.New("content must be 1 to 500 characters")
	ErrInvalidVote      = errors.New("vote must be +1 or -1")
	ErrAlreadyVoted     = errors.New("post already voted")
	ErrNotInFeed        = errors.New("post not in feed")
	ErrOwnPost          = errors.New("post is your own")
	ErrEmptyComment     = errors.New("comment is empty")
	ErrNotOwner         = errors.New("neither author nor rewinner of post")
	ErrAlreadyRewun     = errors.New("post already rewun")
)
