package controllers

import (
	"github.com/cppla/winsome/models"
	"github.com/cppla/winsome/utils"
)

// CreatePost publishes a new original post on username's blog.
func (a *App) CreatePost(username, title, content string) utils.H {
	id, err := a.Content.CreatePost(username, utils.Sanitize(title), utils.Sanitize(content))
	if err != nil {
		return createCodes.respond("createPost", err)
	}
	utils.Sugar.Debugf("post created id=%d author=%s", id, username)
	return utils.Success(utils.H{"id": id})
}

func (a *App) ViewBlog(username string) utils.H {
	return utils.Success(utils.H{"items": summaries(a.Content.Blog(username))})
}

func (a *App) ViewFeed(username string) utils.H {
	following := a.Graph.Following(username)
	return utils.Success(utils.H{"items": summaries(a.Content.Feed(following))})
}

// RatePost votes value on the original behind post.
func (a *App) RatePost(username string, post int64, value int) utils.H {
	following := a.Graph.Following(username)
	if err := a.Content.RatePost(username, post, value, following); err != nil {
		return rateCodes.respond("ratePost", err)
	}
	return utils.Success(nil)
}

func (a *App) AddComment(username string, post int64, comment string) utils.H {
	following := a.Graph.Following(username)
	if err := a.Content.AddComment(username, post, utils.Sanitize(comment), following); err != nil {
		return commentCodes.respond("addComment", err)
	}
	return utils.Success(nil)
}

// ShowPost returns the original behind post with its comments and vote counts.
func (a *App) ShowPost(username string, post int64) utils.H {
	following := a.Graph.Following(username)
	d, err := a.Content.ShowPost(username, post, following)
	if err != nil {
		return showCodes.respond("showPost", err)
	}
	comments := d.Comments
	if comments == nil {
		comments = []models.Comment{}
	}
	return utils.Success(utils.H{
		"id":         d.ID,
		"title":      d.Title,
		"content":    d.Content,
		"author":     d.Author,
		"comments":   comments,
		"nUpvotes":   d.Upvotes,
		"nDownvotes": d.Downvotes,
	})
}

func (a *App) DeletePost(username string, post int64) utils.H {
	if err := a.Content.DeletePost(username, post); err != nil {
		return deleteCodes.respond("deletePost", err)
	}
	utils.Sugar.Debugf("post deleted id=%d by=%s", post, username)
	return utils.Success(nil)
}

// RewinPost reshares post on username's blog and returns the rewin id.
func (a *App) RewinPost(username string, post int64) utils.H {
	following := a.Graph.Following(username)
	id, err := a.Content.RewinPost(username, post, following)
	if err != nil {
		return rewinCodes.respond("rewinPost", err)
	}
	return utils.Success(utils.H{"id": id})
}

func summaries(list []models.PostSummary) []models.PostSummary {
	if list == nil {
		return []models.PostSummary{}
	}
	return list
}
