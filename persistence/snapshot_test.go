package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cppla/winsome/models"
	"github.com/cppla/winsome/store"
)

func newStores() Stores {
	users := store.NewUserStore()
	return Stores{Users: users, Graph: store.NewGraphStore(users), Content: store.NewContentStore(nil)}
}

func seed(t *testing.T, s Stores) (orig, rewin int64) {
	t.Helper()
	_ = s.Users.Signup("alice", "h", []string{"tech"})
	_ = s.Users.Signup("bob", "h", []string{"tech"})
	if err := s.Graph.Follow("bob", "alice"); err != nil {
		t.Fatalf("follow: %v", err)
	}
	orig, _ = s.Content.CreatePost("alice", "Hi", "First post")
	rewin, err := s.Content.RewinPost("bob", orig, []string{"alice"})
	if err != nil {
		t.Fatalf("rewin: %v", err)
	}
	_ = s.Content.RatePost("bob", orig, 1, []string{"alice"})
	_ = s.Content.AddComment("bob", orig, "nice", []string{"alice"})
	s.Users.Credit("alice", models.Transaction{Causal: models.CausalAuthorReward, Amount: 0.5, Post: orig})
	return orig, rewin
}

func TestSaveLoadRestoresState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	src := newStores()
	orig, rewin := seed(t, src)
	if err := Save(path, src); err != nil {
		t.Fatalf("save: %v", err)
	}

	dst := newStores()
	skipped, err := Load(path, dst)
	if err != nil || len(skipped) != 0 {
		t.Fatalf("load: %v skipped=%v", err, skipped)
	}
	if err := dst.Users.CheckPassword("alice", "h"); err != nil {
		t.Fatalf("credentials lost: %v", err)
	}
	if amount, _, _ := dst.Users.Wallet("alice"); amount != 0.5 {
		t.Fatalf("wallet lost: %v", amount)
	}
	if !dst.Graph.IsFollowing("bob", "alice") {
		t.Fatalf("graph lost")
	}
	d, err := dst.Content.ShowPost("bob", rewin, []string{"alice"})
	if err != nil || d.ID != orig || d.Upvotes != 1 || len(d.Comments) != 1 {
		t.Fatalf("content lost: %+v %v", d, err)
	}
	if _, err := dst.Content.RewinPost("bob", orig, []string{"alice"}); err != store.ErrAlreadyRewun {
		t.Fatalf("rewin link lost: %v", err)
	}
	next, _ := dst.Content.CreatePost("alice", "new", "x")
	if next <= rewin {
		t.Fatalf("id allocator not advanced: %d", next)
	}
}

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	s := newStores()
	skipped, err := Load(filepath.Join(t.TempDir(), "nope.json"), s)
	if err != nil || skipped != nil {
		t.Fatalf("expected empty start, got %v %v", skipped, err)
	}
	if len(s.Users.Usernames()) != 0 {
		t.Fatalf("expected no users")
	}
}

func TestLoadStringEncodedAndCorruptKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	doc := `{
  "users": "{\"alice\":{\"username\":\"alice\",\"tags\":[\"tech\"],\"transactions\":[]}}",
  "following": {"alice": ["bob"]},
  "posts": {"3": {"title": "Hi", "content": "x", "author": "alice", "rewardIterations": 2}},
  "votes": [1, 2, 3],
  "comments": "not json"
}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s := newStores()
	skipped, err := Load(path, s)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(skipped) != 2 || skipped[0] != KeyVotes || skipped[1] != KeyComments {
		t.Fatalf("unexpected skipped keys %v", skipped)
	}
	if names := s.Users.Usernames(); len(names) != 1 || names[0] != "alice" {
		t.Fatalf("string encoded users not loaded: %v", names)
	}
	if f := s.Graph.Followers("bob"); len(f) != 1 || f[0] != "alice" {
		t.Fatalf("followers not rebuilt: %v", f)
	}
	if p, ok := s.Content.Post(3); !ok || p.RewardIterations != 2 {
		t.Fatalf("post not loaded: %+v", p)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	_ = os.WriteFile(path, []byte("{broken"), 0o644)
	if _, err := Load(path, newStores()); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestAutosaveWritesFinalSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data.json")
	s := newStores()
	seed(t, s)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Autosave(ctx, path, s, time.Hour)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("autosave did not stop")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("final snapshot missing: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	if len(matches) != 0 {
		t.Fatalf("temp files left behind: %v", matches)
	}
}
