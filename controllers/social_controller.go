package controllers

import (
	"sync"

	"github.com/cppla/winsome/utils"
)

// ListUsers maps every user sharing a tag with username to the shared tags.
func (a *App) ListUsers(username string) utils.H {
	common, err := a.Users.CommonTags(username)
	if err != nil {
		return anyCodes.respond("listUsers", err)
	}
	return utils.Success(utils.H{"items": common})
}

func (a *App) ListFollowing(username string) utils.H {
	return utils.Success(utils.H{"items": nonNil(a.Graph.Following(username))})
}

func (a *App) ListFollowers(username string) utils.H {
	return utils.Success(utils.H{"items": nonNil(a.Graph.Followers(username))})
}

// Follow adds target to username's following list and notifies target if it is registered.
func (a *App) Follow(username, target string) utils.H {
	unlock := a.lockTarget(target)
	defer unlock()
	if err := a.Graph.Follow(username, target); err != nil {
		return followCodes.respond("follow", err)
	}
	a.Notify.NewFollower(target, username)
	return utils.Success(nil)
}

// Unfollow removes target from username's following list and notifies target.
func (a *App) Unfollow(username, target string) utils.H {
	unlock := a.lockTarget(target)
	defer unlock()
	if err := a.Graph.Unfollow(username, target); err != nil {
		return unfollowCodes.respond("unfollow", err)
	}
	a.Notify.Unfollowed(target, username)
	return utils.Success(nil)
}

// lockTarget serializes follow changes on target so its callback sees them in graph order.
func (a *App) lockTarget(target string) func() {
	v, _ := a.targetLocks.LoadOrStore(target, new(sync.Mutex))
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
