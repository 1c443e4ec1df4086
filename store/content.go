package store

import (
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cppla/winsome/models"
)

const (
	MaxTitleLength   = 20
	MaxContentLength = 500
)

// ContentStore owns posts, votes, comments and rewin links.
// Votes and comments are keyed by the original post id.
type ContentStore struct {
	mu       sync.RWMutex
	ids      IDAllocator
	posts    map[int64]*models.Post
	blogs    map[string][]int64 // owner -> post ids (originals by author, rewins by rewinner)
	votes    map[int64][]models.Vote
	comments map[int64][]models.Comment
	rewins   map[int64][]int64 // original id -> rewin post ids
	now      func() time.Time
}

// NewContentStore builds an empty store. A nil allocator uses a sequence starting at 1.
func NewContentStore(ids IDAllocator) *ContentStore {
	if ids == nil {
		ids = NewSequenceAllocator(1)
	}
	return &ContentStore{
		ids:      ids,
		posts:    make(map[int64]*models.Post),
		blogs:    make(map[string][]int64),
		votes:    make(map[int64][]models.Vote),
		comments: make(map[int64][]models.Comment),
		rewins:   make(map[int64][]int64),
		now:      time.Now,
	}
}

// SetClock overrides the time source used for timestamps.
func (s *ContentStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// PostDetail is what showPost returns, resolved to the original.
type PostDetail struct {
	ID        int64
	Title     string
	Content   string
	Author    string
	Comments  []models.Comment
	Upvotes   int
	Downvotes int
}

// CreatePost validates and stores a new original post, returning its id.
func (s *ContentStore) CreatePost(author, title, content string) (int64, error) {
	if n := utf8.RuneCountInString(title); n == 0 || n > MaxTitleLength {
		return 0, ErrInvalidTitle
	}
	if n := utf8.RuneCountInString(content); n == 0 || n > MaxContentLength {
		return 0, ErrInvalidContent
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p := &models.Post{
		ID:               s.ids.Next(),
		Title:            title,
		Content:          content,
		Author:           author,
		Timestamp:        s.now(),
		RewardIterations: 1,
	}
	s.insertLocked(p)
	return p.ID, nil
}

// Blog lists the posts owned by username, newest first.
func (s *ContentStore) Blog(username string) []models.PostSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summariesLocked(s.blogs[username])
}

// Feed lists every post owned by a user in following, newest first.
func (s *ContentStore) Feed(following []string) []models.PostSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []int64
	for _, f := range following {
		ids = append(ids, s.blogs[f]...)
	}
	return s.summariesLocked(ids)
}

// RatePost records a vote by user on the original behind postID.
func (s *ContentStore) RatePost(user string, postID int64, value int, following []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	orig, ok := s.resolveLocked(postID)
	if !ok {
		return ErrPostNotFound
	}
	if value != 1 && value != -1 {
		return ErrInvalidVote
	}
	if orig.Author == user {
		return ErrOwnPost
	}
	for _, v := range s.votes[orig.ID] {
		if v.User == user {
			return ErrAlreadyVoted
		}
	}
	if !s.inFeedLocked(orig, toSet(following)) {
		return ErrNotInFeed
	}
	s.votes[orig.ID] = append(s.votes[orig.ID], models.Vote{User: user, Value: value, Timestamp: s.now()})
	return nil
}

// AddComment appends a comment by user on the original behind postID.
func (s *ContentStore) AddComment(user string, postID int64, text string, following []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	orig, ok := s.resolveLocked(postID)
	if !ok {
		return ErrPostNotFound
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyComment
	}
	if orig.Author == user {
		return ErrOwnPost
	}
	if !s.inFeedLocked(orig, toSet(following)) {
		return ErrNotInFeed
	}
	s.comments[orig.ID] = append(s.comments[orig.ID], models.Comment{User: user, Content: text, Timestamp: s.now()})
	return nil
}

// ShowPost returns the original behind postID if it is in user's feed or blog.
func (s *ContentStore) ShowPost(user string, postID int64, following []string) (PostDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orig, ok := s.resolveLocked(postID)
	if !ok {
		return PostDetail{}, ErrPostNotFound
	}
	if orig.Author != user && !s.rewunByLocked(orig.ID, user) && !s.inFeedLocked(orig, toSet(following)) {
		return PostDetail{}, ErrNotInFeed
	}
	d := PostDetail{
		ID:       orig.ID,
		Title:    orig.Title,
		Content:  orig.Content,
		Author:   orig.Author,
		Comments: append([]models.Comment{}, s.comments[orig.ID]...),
	}
	for _, v := range s.votes[orig.ID] {
		if v.Value > 0 {
			d.Upvotes++
		} else {
			d.Downvotes++
		}
	}
	return d, nil
}

// DeletePost removes postID if user owns it. Deleting an original also drops its votes, comments and rewins.
func (s *ContentStore) DeletePost(user string, postID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[postID]
	if !ok {
		return ErrPostNotFound
	}
	if p.Owner() != user {
		return ErrNotOwner
	}
	if p.Rewin {
		s.unlinkRewinLocked(p)
		s.dropLocked(p)
		return nil
	}
	for _, rid := range s.rewins[p.ID] {
		if r, ok := s.posts[rid]; ok {
			s.dropLocked(r)
		}
	}
	delete(s.rewins, p.ID)
	delete(s.votes, p.ID)
	delete(s.comments, p.ID)
	s.dropLocked(p)
	return nil
}

// RewinPost reshares the original behind postID on user's blog, returning the new post id.
func (s *ContentStore) RewinPost(user string, postID int64, following []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orig, ok := s.resolveLocked(postID)
	if !ok {
		return 0, ErrPostNotFound
	}
	if !s.inFeedLocked(orig, toSet(following)) {
		return 0, ErrNotInFeed
	}
	if orig.Author == user {
		return 0, ErrOwnPost
	}
	if s.rewunByLocked(orig.ID, user) {
		return 0, ErrAlreadyRewun
	}
	r := &models.Post{
		ID:               s.ids.Next(),
		Title:            orig.Title,
		Content:          orig.Content,
		Author:           orig.Author,
		Timestamp:        s.now(),
		RewardIterations: 1,
		Rewin:            true,
		Rewinner:         user,
		Original:         orig.ID,
	}
	s.insertLocked(r)
	s.rewins[orig.ID] = append(s.rewins[orig.ID], r.ID)
	return r.ID, nil
}

// Post returns a copy of the post stored under id.
func (s *ContentStore) Post(id int64) (models.Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	if !ok {
		return models.Post{}, false
	}
	return *p, true
}

// RewardInput is the state of one original post handed to a reward pass.
type RewardInput struct {
	Post     models.Post
	Votes    []models.Vote
	Comments []models.Comment
}

// RewardPass calls fn for every original post in id order while holding the write lock,
// then bumps the post reward iteration counter. It returns the time the pass started;
// interactions strictly after it belong to the next pass.
func (s *ContentStore) RewardPass(fn func(in RewardInput)) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := s.now()
	ids := make([]int64, 0, len(s.posts))
	for id, p := range s.posts {
		if !p.Rewin {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		p := s.posts[id]
		fn(RewardInput{Post: *p, Votes: s.votes[id], Comments: s.comments[id]})
		p.RewardIterations++
	}
	return started
}

// Snapshot is the exported content state.
type Snapshot struct {
	Posts    map[int64]models.Post
	Votes    map[int64][]models.Vote
	Comments map[int64][]models.Comment
	Rewins   map[int64][]int64
}

// Export copies the whole store.
func (s *ContentStore) Export() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Posts:    make(map[int64]models.Post, len(s.posts)),
		Votes:    make(map[int64][]models.Vote, len(s.votes)),
		Comments: make(map[int64][]models.Comment, len(s.comments)),
		Rewins:   make(map[int64][]int64, len(s.rewins)),
	}
	for id, p := range s.posts {
		snap.Posts[id] = *p
	}
	for id, v := range s.votes {
		snap.Votes[id] = append([]models.Vote(nil), v...)
	}
	for id, c := range s.comments {
		snap.Comments[id] = append([]models.Comment(nil), c...)
	}
	for id, r := range s.rewins {
		snap.Rewins[id] = append([]int64(nil), r...)
	}
	return snap
}

// Import replaces the store content and moves the id allocator past the highest id.
// Votes, comments and rewin links pointing at unknown posts are dropped.
func (s *ContentStore) Import(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.posts = make(map[int64]*models.Post, len(snap.Posts))
	s.blogs = make(map[string][]int64)
	s.votes = make(map[int64][]models.Vote)
	s.comments = make(map[int64][]models.Comment)
	s.rewins = make(map[int64][]int64)

	ids := make([]int64, 0, len(snap.Posts))
	for id := range snap.Posts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var maxID int64
	for _, id := range ids {
		p := snap.Posts[id]
		p.ID = id
		if p.RewardIterations < 1 {
			p.RewardIterations = 1
		}
		s.insertLocked(&p)
		if id > maxID {
			maxID = id
		}
	}
	for id, v := range snap.Votes {
		if p, ok := s.posts[id]; ok && !p.Rewin {
			s.votes[id] = append([]models.Vote(nil), v...)
		}
	}
	for id, c := range snap.Comments {
		if p, ok := s.posts[id]; ok && !p.Rewin {
			s.comments[id] = append([]models.Comment(nil), c...)
		}
	}
	// rewin links are rebuilt from the posts themselves; the stored map only fills gaps
	for _, id := range ids {
		if p := s.posts[id]; p.Rewin {
			s.rewins[p.Original] = append(s.rewins[p.Original], id)
		}
	}
	for orig, rids := range snap.Rewins {
		for _, rid := range rids {
			if r, ok := s.posts[rid]; ok && r.Rewin && r.Original == orig && !containsID(s.rewins[orig], rid) {
				s.rewins[orig] = append(s.rewins[orig], rid)
			}
		}
	}
	s.ids.Reset(maxID + 1)
}

func (s *ContentStore) insertLocked(p *models.Post) {
	s.posts[p.ID] = p
	owner := p.Owner()
	s.blogs[owner] = append(s.blogs[owner], p.ID)
}

func (s *ContentStore) dropLocked(p *models.Post) {
	delete(s.posts, p.ID)
	owner := p.Owner()
	s.blogs[owner] = removeID(s.blogs[owner], p.ID)
	if len(s.blogs[owner]) == 0 {
		delete(s.blogs, owner)
	}
}

func (s *ContentStore) unlinkRewinLocked(r *models.Post) {
	links := removeID(s.rewins[r.Original], r.ID)
	if len(links) == 0 {
		delete(s.rewins, r.Original)
		return
	}
	s.rewins[r.Original] = links
}

// resolveLocked returns the original post behind id.
func (s *ContentStore) resolveLocked(id int64) (*models.Post, bool) {
	p, ok := s.posts[id]
	if !ok {
		return nil, false
	}
	if !p.Rewin {
		return p, true
	}
	orig, ok := s.posts[p.Original]
	return orig, ok
}

// inFeedLocked reports whether orig reaches a feed built from following, either directly or through a rewin.
func (s *ContentStore) inFeedLocked(orig *models.Post, following map[string]struct{}) bool {
	if _, ok := following[orig.Author]; ok {
		return true
	}
	for _, rid := range s.rewins[orig.ID] {
		if r, ok := s.posts[rid]; ok {
			if _, ok := following[r.Rewinner]; ok {
				return true
			}
		}
	}
	return false
}

func (s *ContentStore) rewunByLocked(origID int64, user string) bool {
	for _, rid := range s.rewins[origID] {
		if r, ok := s.posts[rid]; ok && r.Rewinner == user {
			return true
		}
	}
	return false
}

func (s *ContentStore) summariesLocked(ids []int64) []models.PostSummary {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })
	out := make([]models.PostSummary, 0, len(sorted))
	for _, id := range sorted {
		if p, ok := s.posts[id]; ok {
			out = append(out, p.Summary())
		}
	}
	return out
}

func toSet(list []string) map[string]struct{} {
	set := make(map[string]struct{}, len(list))
	for _, v := range list {
		set[v] = struct{}{}
	}
	return set
}

func containsID(list []int64, id int64) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}

func removeID(list []int64, id int64) []int64 {
	out := list[:0]
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
