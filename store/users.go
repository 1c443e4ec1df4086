package store

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/cppla/winsome/models"
	"github.com/cppla/winsome/utils"
)

const maxTags = 5

var usernamePattern = regexp.MustCompile(`^\w{1,15}$`)

// UserStore owns credentials, tags and wallets.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]*models.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]*models.User)}
}

// NormalizeTags lowercases, trims and deduplicates tags, keeping first-seen order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Signup registers a new user. password is the client-side hash; it is stored bcrypt hashed.
func (s *UserStore) Signup(username, password string, tags []string) error {
	if !usernamePattern.MatchString(username) {
		return ErrInvalidUsername
	}
	norm := NormalizeTags(tags)
	if len(norm) == 0 || len(norm) > maxTags {
		return ErrInvalidTags
	}
	if password == "" || len(password) > 72 {
		return ErrInvalidPassword
	}
	// quick check before hashing, which is slow
	if s.Exists(username) {
		return ErrUserExists
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return ErrUserExists
	}
	s.users[username] = &models.User{
		Username:     username,
		PasswordHash: hash,
		Tags:         norm,
		Transactions: []models.Transaction{},
	}
	return nil
}

func (s *UserStore) Exists(username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[username]
	return ok
}

// CheckPassword returns ErrUserNotFound or ErrWrongPassword on failure.
func (s *UserStore) CheckPassword(username, password string) error {
	s.mu.RLock()
	u, ok := s.users[username]
	var hash string
	if ok {
		hash = u.PasswordHash
	}
	s.mu.RUnlock()
	if !ok {
		return ErrUserNotFound
	}
	if !utils.CheckPassword(hash, password) {
		return ErrWrongPassword
	}
	return nil
}

// SharedTags returns the tags a and b have in common, in a's order.
func (s *UserStore) SharedTags(a, b string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ua, ok1 := s.users[a]
	ub, ok2 := s.users[b]
	if !ok1 || !ok2 {
		return nil
	}
	return intersect(ua.Tags, ub.Tags)
}

// CommonTags maps every other user sharing at least one tag with username to the shared tags.
func (s *UserStore) CommonTags(username string) (map[string][]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	me, ok := s.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := make(map[string][]string)
	for name, u := range s.users {
		if name == username {
			continue
		}
		if shared := intersect(me.Tags, u.Tags); len(shared) > 0 {
			out[name] = shared
		}
	}
	return out, nil
}

// Usernames lists all users sorted by name.
func (s *UserStore) Usernames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.users))
	for name := range s.users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Credit appends transactions to username's history and adds them to the wallet.
// Unknown users are skipped and reported as false.
func (s *UserStore) Credit(username string, txns ...models.Transaction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return false
	}
	for _, t := range txns {
		u.Transactions = append(u.Transactions, t)
		u.Wallet += t.Amount
	}
	return true
}

// Wallet returns the balance and a copy of the transaction history.
func (s *UserStore) Wallet(username string) (float64, []models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return 0, nil, ErrUserNotFound
	}
	return u.Wallet, append([]models.Transaction{}, u.Transactions...), nil
}

// Export copies every user for snapshotting.
func (s *UserStore) Export() map[string]models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.User, len(s.users))
	for name, u := range s.users {
		out[name] = u.Clone()
	}
	return out
}

// Import replaces the store content. The wallet is recomputed from the transaction history.
func (s *UserStore) Import(users map[string]models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make(map[string]*models.User, len(users))
	for name, u := range users {
		c := u.Clone()
		c.Username = name
		if c.Transactions == nil {
			c.Transactions = []models.Transaction{}
		}
		c.Wallet = 0
		for _, t := range c.Transactions {
			c.Wallet += t.Amount
		}
		s.users[name] = &c
	}
}

func intersect(a, b []string) []string {
	var out []string
	for _, x := range a {
		for _, y := range b {
			if x == y {
				out = append(out, x)
				break
			}
		}
	}
	return out
}
