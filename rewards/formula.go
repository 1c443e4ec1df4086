package rewards

import (
	"math"
	"sort"
	"time"

	"github.com/cppla/winsome/models"
)

// Credit is one transaction owed to a user.
type Credit struct {
	User string
	Txn  models.Transaction
}

// postReward applies the reward formula to the interactions of one original post newer than since.
func postReward(p models.Post, votes []models.Vote, comments []models.Comment, since, at time.Time, authorPct float64) []Credit {
	voteSum := 0
	var raters []string
	for _, v := range votes {
		if !v.Timestamp.After(since) {
			continue
		}
		voteSum += v.Value
		if v.Value > 0 {
			raters = append(raters, v.User)
		}
	}

	perCommenter := make(map[string]int)
	totalComments := 0
	for _, c := range comments {
		if !c.Timestamp.After(since) {
			continue
		}
		perCommenter[c.User]++
		totalComments++
	}
	commentScore := 0.0
	for _, n := range perCommenter {
		commentScore += 2 / (1 + math.Exp(-float64(n-1)))
	}

	iterations := p.RewardIterations
	if iterations < 1 {
		iterations = 1
	}
	reward := (math.Log(float64(max(voteSum, 0))+1) + math.Log(commentScore+1)) / float64(iterations)
	if reward <= 0 {
		return nil
	}

	authorShare := reward * authorPct / 100
	curatorShare := reward - authorShare
	credits := make([]Credit, 0, 1+len(perCommenter)+len(raters))
	if authorShare > 0 {
		credits = append(credits, Credit{User: p.Author, Txn: txn(models.CausalAuthorReward, authorShare, p.ID, at)})
	}
	units := len(raters) + totalComments
	if units == 0 || curatorShare <= 0 {
		return credits
	}
	perUnit := curatorShare / float64(units)

	commenters := make([]string, 0, len(perCommenter))
	for u := range perCommenter {
		commenters = append(commenters, u)
	}
	sort.Strings(commenters)
	for _, u := range commenters {
		credits = append(credits, Credit{User: u, Txn: txn(models.CausalCuratorComment, perUnit*float64(perCommenter[u]), p.ID, at)})
	}
	for _, u := range raters {
		credits = append(credits, Credit{User: u, Txn: txn(models.CausalCuratorVote, perUnit, p.ID, at)})
	}
	return credits
}

func txn(causal string, amount float64, post int64, at time.Time) models.Transaction {
	return models.Transaction{Causal: causal, Amount: amount, Timestamp: at, Post: post}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
