// Package notify delivers follow events to registered callbacks and reward broadcasts to a multicast group.
package notify

import (
	"errors"
	"sync"

	"github.com/cppla/winsome/utils"
)

// Callback receives follow events for one user.
type Callback interface {
	NewFollower(follower string, isNew bool) error
	Unfollowed(follower string) error
	Close() error
}

// FollowerSource lists a user's current followers for the registration replay.
type FollowerSource interface {
	Followers(username string) []string
}

// Registry maps usernames to their callback.
type Registry struct {
	mu   sync.RWMutex
	subs map[string]Callback
	src  FollowerSource
}

func NewRegistry(src FollowerSource) *Registry {
	return &Registry{subs: make(map[string]Callback), src: src}
}

// Register binds cb to username, replacing and closing any previous callback,
// then replays the current followers as not new.
func (r *Registry) Register(username string, cb Callback) error {
	if cb == nil {
		return errors.New("nil callback")
	}
	r.mu.Lock()
	old := r.subs[username]
	r.subs[username] = cb
	r.mu.Unlock()
	if old != nil && old != cb {
		go closeQuietly(username, old)
	}

	for _, f := range r.src.Followers(username) {
		if err := cb.NewFollower(f, false); err != nil {
			r.drop(username, cb, err)
			return err
		}
	}
	utils.Sugar.Debugf("callback registered user=%s", username)
	return nil
}

// Unregister removes username's callback and closes it.
func (r *Registry) Unregister(username string) bool {
	r.mu.Lock()
	cb, ok := r.subs[username]
	delete(r.subs, username)
	r.mu.Unlock()
	if ok {
		go closeQuietly(username, cb)
	}
	return ok
}

// Release removes cb only if it is still username's callback. It does not close it.
func (r *Registry) Release(username string, cb Callback) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subs[username] != cb {
		return false
	}
	delete(r.subs, username)
	return true
}

// Registered reports whether username has a callback.
func (r *Registry) Registered(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subs[username]
	return ok
}

// NewFollower tells target that follower started following it.
func (r *Registry) NewFollower(target, follower string) {
	cb := r.lookup(target)
	if cb == nil {
		return
	}
	if err := cb.NewFollower(follower, true); err != nil {
		r.drop(target, cb, err)
	}
}

// Unfollowed tells target that follower stopped following it.
func (r *Registry) Unfollowed(target, follower string) {
	cb := r.lookup(target)
	if cb == nil {
		return
	}
	if err := cb.Unfollowed(follower); err != nil {
		r.drop(target, cb, err)
	}
}

// CloseAll unregisters and closes every callback.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	subs := r.subs
	r.subs = make(map[string]Callback)
	r.mu.Unlock()
	for user, cb := range subs {
		closeQuietly(user, cb)
	}
}

func (r *Registry) lookup(username string) Callback {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.subs[username]
}

// drop unregisters a callback whose delivery failed.
func (r *Registry) drop(username string, cb Callback, cause error) {
	utils.Sugar.Warnf("callback delivery failed user=%s err=%v", username, cause)
	if r.Release(username, cb) {
		go closeQuietly(username, cb)
	}
}

func closeQuietly(username string, cb Callback) {
	if err := cb.Close(); err != nil {
		utils.Sugar.Debugf("callback close user=%s err=%v", username, err)
	}
}
