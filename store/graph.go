package store

import "sync"

// Directory answers the identity questions the graph needs before adding an edge.
type Directory interface {
	Exists(username string) bool
	SharedTags(a, b string) []string
}

// GraphStore owns the follower and following adjacency lists.
// Follow and Unfollow are serialized by its lock; the directory lock nests inside it.
type GraphStore struct {
	mu        sync.RWMutex
	dir       Directory
	followers map[string][]string
	following map[string][]string
}

func NewGraphStore(dir Directory) *GraphStore {
	return &GraphStore{
		dir:       dir,
		followers: make(map[string][]string),
		following: make(map[string][]string),
	}
}

// Follow adds the edge user -> target if it is valid.
func (g *GraphStore) Follow(user, target string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if contains(g.following[user], target) {
		return ErrAlreadyFollowing
	}
	if !g.dir.Exists(target) {
		return ErrUserNotFound
	}
	if user == target {
		return ErrSelfFollow
	}
	if len(g.dir.SharedTags(user, target)) == 0 {
		return ErrNoSharedTags
	}
	g.following[user] = append(g.following[user], target)
	g.followers[target] = append(g.followers[target], user)
	return nil
}

// Unfollow removes the edge user -> target.
func (g *GraphStore) Unfollow(user, target string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.dir.Exists(target) {
		return ErrUserNotFound
	}
	if !contains(g.following[user], target) {
		return ErrNotFollowing
	}
	g.following[user] = remove(g.following[user], target)
	g.followers[target] = remove(g.followers[target], user)
	return nil
}

// Following returns a copy of the users username follows.
func (g *GraphStore) Following(username string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string{}, g.following[username]...)
}

// Followers returns a copy of the users following username.
func (g *GraphStore) Followers(username string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string{}, g.followers[username]...)
}

// IsFollowing reports whether the edge user -> target exists.
func (g *GraphStore) IsFollowing(user, target string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return contains(g.following[user], target)
}

// Export copies both adjacency maps.
func (g *GraphStore) Export() (followers, following map[string][]string) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return copyAdjacency(g.followers), copyAdjacency(g.following)
}

// Import replaces the adjacency maps. Either may be nil; a missing side is rebuilt from the other.
func (g *GraphStore) Import(followers, following map[string][]string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case following != nil:
		g.following = copyAdjacency(following)
		g.followers = invert(g.following)
	case followers != nil:
		g.followers = copyAdjacency(followers)
		g.following = invert(g.followers)
	default:
		g.followers = make(map[string][]string)
		g.following = make(map[string][]string)
	}
}

func copyAdjacency(m map[string][]string) map[string][]string {
	out := make(map[string][]string, len(m))
	for k, v := range m {
		if len(v) > 0 {
			out[k] = append([]string(nil), v...)
		}
	}
	return out
}

func invert(m map[string][]string) map[string][]string {
	out := make(map[string][]string, len(m))
	for from, tos := range m {
		for _, to := range tos {
			if !contains(out[to], from) {
				out[to] = append(out[to], from)
			}
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func remove(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
