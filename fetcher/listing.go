package fetcher

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/brettboylen/trend-whisperer/models"
)

var errMissingChildren = errors.New("missing data.children")

// listing is the Reddit listing envelope: {"kind": ..., "data": {"children": [{"kind": ..., "data": T}]}}
type listing[T any] struct {
	Kind string `json:"kind"`
	Data *struct {
		After    string     `json:"after"`
		Children []child[T] `json:"children"`
	} `json:"data"`
}

type child[T any] struct {
	Kind string `json:"kind"`
	Data T      `json:"data"`
}

func (l *listing[T]) children() ([]child[T], error) {
	if l.Data == nil || l.Data.Children == nil {
		return nil, errMissingChildren
	}
	return l.Data.Children, nil
}

// decodeListing accepts a single listing or an array of listings (the native
// shape of the comments endpoint, where the last listing holds the comments).
func decodeListing[T any](body []byte) ([]child[T], error) {
	trimmed := bytes.TrimSpace(body)

	if len(trimmed) > 0 && trimmed[0] == '[' {
		var listings []listing[T]
		if err := json.Unmarshal(trimmed, &listings); err != nil {
			return nil, err
		}
		if len(listings) == 0 {
			return nil, errMissingChildren
		}
		return listings[len(listings)-1].children()
	}

	var l listing[T]
	if err := json.Unmarshal(trimmed, &l); err != nil {
		return nil, err
	}
	return l.children()
}

// RedditPost is the post payload of a listing child (kind t3)
type RedditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	SelfText    string  `json:"selftext"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	URL         string  `json:"url"`
	Permalink   string  `json:"permalink"`
	CreatedUTC  float64 `json:"created_utc"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
}

func (p RedditPost) toModel() models.Post {
	return models.Post{
		ID:          p.ID,
		Title:       p.Title,
		SelfText:    p.SelfText,
		Author:      p.Author,
		Subreddit:   p.Subreddit,
		URL:         p.URL,
		Permalink:   p.Permalink,
		CreatedUTC:  p.CreatedUTC,
		CreatedAt:   time.Unix(int64(p.CreatedUTC), 0).UTC(),
		Score:       p.Score,
		NumComments: p.NumComments,
	}
}

// RedditComment is the comment payload of a listing child (kind t1)
type RedditComment struct {
	ID         string  `json:"id"`
	Body       string  `json:"body"`
	Author     string  `json:"author"`
	Permalink  string  `json:"permalink"`
	CreatedUTC float64 `json:"created_utc"`
	Score      int     `json:"score"`
}

func (c RedditComment) toModel() models.Comment {
	return models.Comment{
		ID:         c.ID,
		Body:       c.Body,
		Author:     c.Author,
		Permalink:  c.Permalink,
		CreatedUTC: c.CreatedUTC,
		CreatedAt:  time.Unix(int64(c.CreatedUTC), 0).UTC(),
		Score:      c.Score,
	}
}

// RedditSubreddit is the subreddit payload of a search child (kind t5)
type RedditSubreddit struct {
	DisplayName string `json:"display_name"`
	Subscribers int    `json:"subscribers"`
	Over18      bool   `json:"over18"`
}
