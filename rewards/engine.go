// Package rewards periodically turns post engagement into wincoin transactions.
package rewards

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cppla/winsome/models"
	"github.com/cppla/winsome/store"
	"github.com/cppla/winsome/utils"
)

// Ledger records credited transactions outside the in-memory wallets.
type Ledger interface {
	Record(ctx context.Context, entries []models.LedgerEntry) error
}

// Notifier announces a finished reward pass.
type Notifier interface {
	Broadcast(msg string) error
}

// Options configures an Engine.
type Options struct {
	Interval         time.Duration
	AuthorPercentage float64
	Ledger           Ledger
	Notifier         Notifier
	Message          string
	// Since is the cut-off of the first pass; zero means the engine creation time.
	Since time.Time
}

// Result summarizes one pass.
type Result struct {
	Posts        int
	Transactions int
	Total        float64
}

// Engine owns the reward timer and the last computation time.
type Engine struct {
	content *store.ContentStore
	users   *store.UserStore
	opts    Options

	mu   sync.Mutex
	last time.Time
	wg   sync.WaitGroup
}

func NewEngine(content *store.ContentStore, users *store.UserStore, opts Options) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Message == "" {
		opts.Message = "rewards computed, check your wallet"
	}
	last := opts.Since
	if last.IsZero() {
		last = time.Now()
	}
	return &Engine{content: content, users: users, opts: opts, last: last}
}

// LastComputed returns the cut-off used by the next pass.
func (e *Engine) LastComputed() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Tick runs one reward pass. Wallets are credited under the content lock; the ledger
// and the broadcast happen after it is released.
func (e *Engine) Tick(ctx context.Context) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var res Result
	var entries []models.LedgerEntry
	started := e.content.RewardPass(func(in store.RewardInput) {
		res.Posts++
		at := time.Now()
		for _, c := range postReward(in.Post, in.Votes, in.Comments, e.last, at, e.opts.AuthorPercentage) {
			if !e.users.Credit(c.User, c.Txn) {
				utils.Sugar.Warnf("reward for unknown user=%s post=%d skipped", c.User, in.Post.ID)
				continue
			}
			res.Transactions++
			res.Total += c.Txn.Amount
			entries = append(entries, models.LedgerEntry{
				Username:  c.User,
				Causal:    c.Txn.Causal,
				Amount:    c.Txn.Amount,
				PostID:    in.Post.ID,
				CreatedAt: c.Txn.Timestamp,
			})
		}
	})
	e.last = started

	e.announce()

	if e.opts.Ledger != nil && len(entries) > 0 {
		if err := e.opts.Ledger.Record(ctx, entries); err != nil {
			return res, fmt.Errorf("record %d ledger entries: %w", len(entries), err)
		}
	}
	utils.Sugar.Infof("reward pass done posts=%d transactions=%d total=%.6f", res.Posts, res.Transactions, res.Total)
	return res, nil
}

// Run ticks every Interval until ctx is done. Failed passes are logged and the timer continues.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.wg.Wait()
			return
		case <-ticker.C:
			if _, err := e.Tick(ctx); err != nil {
				utils.Sugar.Errorf("reward pass failed: %v", err)
			}
		}
	}
}

// Wait blocks until pending broadcasts finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) announce() {
	if e.opts.Notifier == nil {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.opts.Notifier.Broadcast(e.opts.Message); err != nil {
			utils.Sugar.Warnf("reward broadcast failed: %v", err)
		}
	}()
}
