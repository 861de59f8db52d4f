package sources

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"idealens/internal/domain/analysis"
	"idealens/internal/infra/httpclient"
	"idealens/internal/logging"
)

const maxRedditPosts = 50

// defaultSubreddits are the channels swept for problem discussion.
var defaultSubreddits = []string{
	"startups", "entrepreneur", "smallbusiness", "business", "investing",
	"stocks", "finance", "technology", "producthunt", "indiehackers",
}

// urgencyWords flag posts describing an acute need.
var urgencyWords = []string{"urgent", "critical", "pain", "problem", "need", "must", "help"}

// RedditConfig carries OAuth client credentials.
type RedditConfig struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
}

// Post is one discussion thread relevant to the queried idea.
type Post struct {
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Score     float64 `json:"score"`
	Comments  float64 `json:"num_comments"`
	Created   float64 `json:"created_utc"`
	Subreddit string  `json:"subreddit"`
	Selftext  string  `json:"selftext"`
}

// Reddit searches a fixed set of subreddits for discussion of the idea.
// Each channel is attempted once: a 404 means the channel is gone and is
// skipped, a 429 makes the sweep honor the reset before the next channel.
type Reddit struct {
	client     *httpclient.Client
	cfg        RedditConfig
	subreddits []string
	tokenURL   string
	apiBase    string
}

func NewReddit(client *httpclient.Client, cfg RedditConfig) *Reddit {
	return &Reddit{
		client:     client,
		cfg:        cfg,
		subreddits: defaultSubreddits,
		tokenURL:   "https://www.reddit.com/api/v1/access_token",
		apiBase:    "https://oauth.reddit.com",
	}
}

func (r *Reddit) Name() analysis.Source { return analysis.SourceReddit }

func (r *Reddit) Fetch(ctx context.Context, query string) analysis.SourceResult {
	log := logging.From(ctx)

	token, err := r.token(ctx)
	if err != nil {
		log.Warn("reddit token acquisition failed", "error", err)
		return analysis.SourceResult{
			Source:  analysis.SourceReddit,
			ErrKind: analysis.KindOf(err),
		}
	}

	var posts []Post
	for _, sub := range r.subreddits {
		found, err := r.search(ctx, token, sub, query)
		if err != nil {
			switch {
			case httpclient.IsNotFound(err):
				log.Debug("subreddit not found, skipping", "subreddit", sub)
			case goerr.HasTag(err, analysis.TagRateLimited):
				wait := httpclient.RetryAfterOf(err)
				log.Warn("reddit rate limited, pausing sweep",
					"subreddit", sub, "wait", wait)
				if !pause(ctx, wait) {
					return r.partial(posts, query)
				}
			default:
				log.Warn("subreddit search failed", "subreddit", sub, "error", err)
			}
			continue
		}
		posts = append(posts, found...)
	}

	return r.partial(posts, query)
}

// partial assembles the payload from whatever the sweep collected.
func (r *Reddit) partial(posts []Post, query string) analysis.SourceResult {
	if len(posts) == 0 {
		return analysis.SourceResult{
			Source:  analysis.SourceReddit,
			ErrKind: analysis.ErrKindUnavailable,
		}
	}

	sort.Slice(posts, func(i, j int) bool { return posts[i].Score > posts[j].Score })
	if len(posts) > maxRedditPosts {
		posts = posts[:maxRedditPosts]
	}

	var totalScore, totalComments float64
	var urgency int
	for _, p := range posts {
		totalScore += p.Score
		totalComments += p.Comments
		text := strings.ToLower(p.Title + " " + p.Selftext)
		for _, w := range urgencyWords {
			if strings.Contains(text, w) {
				urgency++
			}
		}
	}

	return analysis.SourceResult{
		Source: analysis.SourceReddit,
		OK:     true,
		Payload: map[string]any{
			"query":          query,
			"posts":          posts,
			"total_posts":    float64(len(posts)),
			"total_comments": totalComments,
			"total_score":    totalScore,
			"urgency_count":  float64(urgency),
		},
	}
}

// token obtains an app-only OAuth token via the client-credentials grant.
func (r *Reddit) token(ctx context.Context) (string, error) {
	basic := base64.StdEncoding.EncodeToString(
		[]byte(r.cfg.ClientID + ":" + r.cfg.ClientSecret))
	header := http.Header{}
	header.Set("Authorization", "Basic "+basic)
	header.Set("Content-Type", "application/x-www-form-urlencoded")
	header.Set("User-Agent", r.cfg.UserAgent)

	var out struct {
		AccessToken string `json:"access_token"`
	}
	err := r.getJSON(ctx, httpclient.Request{
		Method: http.MethodPost,
		URL:    r.tokenURL,
		Header: header,
		Body:   []byte("grant_type=client_credentials"),
		Source: "reddit",
	}, &out)
	if err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", goerr.New("reddit token response missing access_token",
			goerr.T(analysis.TagAuth))
	}
	return out.AccessToken, nil
}

func (r *Reddit) search(ctx context.Context, token, sub, query string) ([]Post, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	header.Set("User-Agent", r.cfg.UserAgent)

	u := fmt.Sprintf(
		"%s/r/%s/search?q=%s&limit=25&sort=relevance&restrict_sr=1&t=all",
		r.apiBase, sub, url.QueryEscape(query))

	resp, err := r.client.Once(ctx, httpclient.Request{
		Method: http.MethodGet,
		URL:    u,
		Header: header,
		Source: "reddit",
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var listing struct {
		Data struct {
			Children []struct {
				Data Post `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, goerr.Wrap(err, "failed to decode reddit listing",
			goerr.V("subreddit", sub))
	}

	posts := make([]Post, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		posts = append(posts, child.Data)
	}
	return posts, nil
}

// getJSON decodes through the retrying client; token requests may retry.
func (r *Reddit) getJSON(ctx context.Context, req httpclient.Request, out any) error {
	resp, err := r.client.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return goerr.Wrap(err, "failed to decode reddit response")
	}
	return nil
}

// pause waits for d, returning false if the context ends first.
func pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
