// Package persistence saves and restores the stores as one JSON document.
package persistence

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cppla/winsome/models"
	"github.com/cppla/winsome/store"
	"github.com/cppla/winsome/utils"
)

// Top-level document keys.
const (
	KeyUsers     = "users"
	KeyFollowers = "followers"
	KeyFollowing = "following"
	KeyPosts     = "posts"
	KeyVotes     = "votes"
	KeyComments  = "comments"
	KeyRewins    = "rewins"
)

// Stores groups everything a snapshot covers.
type Stores struct {
	Users   *store.UserStore
	Graph   *store.GraphStore
	Content *store.ContentStore
}

type document struct {
	Users     map[string]models.User     `json:"users"`
	Followers map[string][]string        `json:"followers"`
	Following map[string][]string        `json:"following"`
	Posts     map[int64]models.Post      `json:"posts"`
	Votes     map[int64][]models.Vote    `json:"votes"`
	Comments  map[int64][]models.Comment `json:"comments"`
	Rewins    map[int64][]int64          `json:"rewins"`
}

// Save writes a snapshot atomically: a temp file in the same directory is renamed over path.
func Save(path string, s Stores) error {
	followers, following := s.Graph.Export()
	snap := s.Content.Export()
	doc := document{
		Users:     s.Users.Export(),
		Followers: followers,
		Following: following,
		Posts:     snap.Posts,
		Votes:     snap.Votes,
		Comments:  snap.Comments,
		Rewins:    snap.Rewins,
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Load restores a snapshot into s. A missing file leaves the stores empty. Every key is decoded
// on its own; keys that fail are skipped and returned so the caller can report them.
func Load(path string, s Stores) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			utils.Sugar.Infof("no snapshot at %s, starting empty", path)
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}

	var skipped []string
	decode := func(key string, v any) bool {
		data, ok := raw[key]
		if !ok {
			return false
		}
		if err := decodeValue(data, v); err != nil {
			utils.Sugar.Warnf("snapshot key %q skipped: %v", key, err)
			skipped = append(skipped, key)
			return false
		}
		return true
	}

	var doc document
	if decode(KeyUsers, &doc.Users) {
		s.Users.Import(doc.Users)
	}
	hasFollowers := decode(KeyFollowers, &doc.Followers)
	hasFollowing := decode(KeyFollowing, &doc.Following)
	if hasFollowers || hasFollowing {
		s.Graph.Import(doc.Followers, doc.Following)
	}
	var snap store.Snapshot
	decode(KeyPosts, &snap.Posts)
	decode(KeyVotes, &snap.Votes)
	decode(KeyComments, &snap.Comments)
	decode(KeyRewins, &snap.Rewins)
	s.Content.Import(snap)

	utils.Sugar.Infof("snapshot loaded path=%s users=%d posts=%d", path, len(doc.Users), len(snap.Posts))
	return skipped, nil
}

// decodeValue accepts either a JSON value or a JSON string holding the encoded value.
func decodeValue(data json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return err
		}
		trimmed = []byte(inner)
	}
	return json.Unmarshal(trimmed, v)
}
