package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idealens/internal/domain/analysis"
	"idealens/internal/infra/httpclient"
)

func fastClient() *httpclient.Client {
	return httpclient.New(httpclient.Options{
		Timeout:     2 * time.Second,
		MaxRetries:  1,
		BaseBackoff: time.Millisecond,
		BackoffCap:  time.Millisecond,
	})
}

func TestCensusFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.RawQuery, "P1_001N"):
			fmt.Fprint(w, `[["P1_001N","us"],["331449281","1"]]`)
		case strings.Contains(r.URL.RawQuery, "B19013_001E"):
			fmt.Fprint(w, `[["B19013_001E","us"],["67521","1"]]`)
		case strings.Contains(r.URL.RawQuery, "B28002_001E"):
			fmt.Fprint(w, `[["B28002_001E","B28002_002E","us"],["100000","90000","1"]]`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewCensus(fastClient(), CensusConfig{BaseURL: srv.URL, APIKey: "k"})
	res := c.Fetch(context.Background(), "smart football socks")

	require.True(t, res.OK)
	assert.Equal(t, analysis.SourceCensus, res.Source)
	assert.Equal(t, 331449281.0, res.Payload["population"])
	assert.Equal(t, 67521.0, res.Payload["median_income"])
	assert.InDelta(t, 331449281.0*67521.0/1_000_000, res.Payload["addressable_value"].(float64), 1e-6)
	assert.InDelta(t, 0.9, res.Payload["internet_penetration"].(float64), 1e-9)
}

func TestCensusFetchFailsWithoutPopulation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.RawQuery, "P1_001N") {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `[["B19013_001E","us"],["67521","1"]]`)
	}))
	defer srv.Close()

	c := NewCensus(fastClient(), CensusConfig{BaseURL: srv.URL, APIKey: "k"})
	res := c.Fetch(context.Background(), "anything")

	assert.False(t, res.OK)
	assert.Equal(t, analysis.ErrKindExhausted, res.ErrKind)
}

func TestCensusFetchToleratesMissingInternet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.RawQuery, "P1_001N"):
			fmt.Fprint(w, `[["P1_001N","us"],["331449281","1"]]`)
		case strings.Contains(r.URL.RawQuery, "B28002_001E"):
			w.WriteHeader(http.StatusNotFound)
		default:
			fmt.Fprint(w, `[["B19013_001E","us"],["67521","1"]]`)
		}
	}))
	defer srv.Close()

	c := NewCensus(fastClient(), CensusConfig{BaseURL: srv.URL, APIKey: "k"})
	res := c.Fetch(context.Background(), "anything")

	require.True(t, res.OK)
	_, hasNet := res.Payload["internet_penetration"]
	assert.False(t, hasNet)
}

func TestSurveyFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.RawQuery, "FIRMPDEMP")
		fmt.Fprint(w, `[["FIRMPDEMP","EMP","us"],["5771292","132989428","1"]]`)
	}))
	defer srv.Close()

	s := NewSurvey(fastClient(), CensusConfig{BaseURL: srv.URL, APIKey: "k"})
	res := s.Fetch(context.Background(), "anything")

	require.True(t, res.OK)
	assert.Equal(t, 5771292.0, res.Payload["establishments"])
	assert.Equal(t, 132989428.0, res.Payload["employment"])
	assert.Equal(t, 0.01, res.Payload["market_share"])
	assert.Equal(t, 0.05, res.Payload["growth_rate"])
}

func TestClampGrowth(t *testing.T) {
	assert.Equal(t, -0.10, clampGrowth(-0.5))
	assert.Equal(t, 0.20, clampGrowth(0.9))
	assert.Equal(t, 0.05, clampGrowth(0.05))
}

func TestRedditFetchAggregates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		user, _, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "cid", user)
		fmt.Fprint(w, `{"access_token":"tok"}`)
	})
	mux.HandleFunc("/r/startups/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"data":{"children":[
			{"data":{"title":"urgent need for better socks","score":120,"num_comments":40,"subreddit":"startups"}},
			{"data":{"title":"a quiet thread","score":300,"num_comments":5,"subreddit":"startups"}}
		]}}`)
	})
	mux.HandleFunc("/r/entrepreneur/search", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound) // skipped, not fatal
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"children":[]}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rd := NewReddit(fastClient(), RedditConfig{ClientID: "cid", ClientSecret: "sec", UserAgent: "test"})
	rd.tokenURL = srv.URL + "/api/v1/access_token"
	rd.apiBase = srv.URL

	res := rd.Fetch(context.Background(), "smart socks")
	require.True(t, res.OK)
	assert.Equal(t, 2.0, res.Payload["total_posts"])
	assert.Equal(t, 45.0, res.Payload["total_comments"])
	assert.Equal(t, 420.0, res.Payload["total_score"])
	assert.Equal(t, 2.0, res.Payload["urgency_count"]) // "urgent" and "need" both count

	// highest score first
	posts := res.Payload["posts"].([]Post)
	require.Len(t, posts, 2)
	assert.Equal(t, "a quiet thread", posts[0].Title)
}

func TestRedditFetchFailsOnBadCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	rd := NewReddit(fastClient(), RedditConfig{ClientID: "cid", ClientSecret: "bad", UserAgent: "test"})
	rd.tokenURL = srv.URL
	rd.apiBase = srv.URL

	res := rd.Fetch(context.Background(), "anything")
	assert.False(t, res.OK)
	assert.Equal(t, analysis.ErrKindAuth, res.ErrKind)
}

func TestRedditFetchEmptySweep(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token":"tok"}`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rd := NewReddit(fastClient(), RedditConfig{ClientID: "cid", ClientSecret: "sec", UserAgent: "test"})
	rd.tokenURL = srv.URL + "/api/v1/access_token"
	rd.apiBase = srv.URL

	res := rd.Fetch(context.Background(), "anything")
	assert.False(t, res.OK)
	assert.Equal(t, analysis.ErrKindUnavailable, res.ErrKind)
}

func TestRedditFetchHonorsRateLimitBetweenChannels(t *testing.T) {
	var limitedHits int
	var limitedAt, lateAt time.Time

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token":"tok"}`)
	})
	mux.HandleFunc("/r/startups/search", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"children":[
			{"data":{"title":"first channel","score":10,"num_comments":2,"subreddit":"startups"}}
		]}}`)
	})
	mux.HandleFunc("/r/limited/search", func(w http.ResponseWriter, r *http.Request) {
		limitedHits++
		limitedAt = time.Now()
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	mux.HandleFunc("/r/late/search", func(w http.ResponseWriter, r *http.Request) {
		lateAt = time.Now()
		fmt.Fprint(w, `{"data":{"children":[
			{"data":{"title":"after the reset","score":20,"num_comments":3,"subreddit":"late"}}
		]}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rd := NewReddit(fastClient(), RedditConfig{ClientID: "cid", ClientSecret: "sec", UserAgent: "test"})
	rd.tokenURL = srv.URL + "/api/v1/access_token"
	rd.apiBase = srv.URL
	rd.subreddits = []string{"startups", "limited", "late"}

	res := rd.Fetch(context.Background(), "smart socks")
	require.True(t, res.OK)

	// the limited channel is not re-requested within the sweep
	assert.Equal(t, 1, limitedHits)
	// the next channel waits out the advertised reset
	assert.GreaterOrEqual(t, lateAt.Sub(limitedAt), time.Second)
	// both healthy channels contributed
	assert.Equal(t, 2.0, res.Payload["total_posts"])
}

func TestWebSearchScrapes(t *testing.T) {
	page := `<html><body>
		<div class="g"><h3>Acme Socks - official store</h3><a href="https://acmesocks.example"></a>
			<div class="VwiC3b">Performance socks for athletes.</div></div>
		<div class="g"><h3>SockCo | shop</h3><a href="https://sockco.example"></a>
			<div class="VwiC3b">Everyday socks.</div></div>
	</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	ws := NewWebSearch(fastClient())
	ws.baseURL = srv.URL

	res := ws.Fetch(context.Background(), "smart socks")
	require.True(t, res.OK)
	comps := res.Payload["competitors"].([]analysis.Competitor)
	require.Len(t, comps, 2)
	assert.Equal(t, "Acme Socks", comps[0].Name)
	assert.Equal(t, "https://acmesocks.example", comps[0].URL)
	assert.Equal(t, "SockCo", comps[1].Name)
}

func TestWebSearchFallsBackToKnownCompetitors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden) // scraper blocked
	}))
	defer srv.Close()

	ws := NewWebSearch(fastClient())
	ws.baseURL = srv.URL

	// any idea gets the incumbents, not just recognized verticals
	res := ws.Fetch(context.Background(), "quantum widget recycling")
	assert.False(t, res.OK)
	assert.Equal(t, analysis.ErrKindAuth, res.ErrKind)
	comps := res.Payload["competitors"].([]analysis.Competitor)
	require.NotEmpty(t, comps)
	assert.Equal(t, "Nike", comps[0].Name)
	assert.True(t, comps[0].Known)
}

func TestWebSearchEmptyPageStillYieldsIncumbents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body></body></html>")
	}))
	defer srv.Close()

	ws := NewWebSearch(fastClient())
	ws.baseURL = srv.URL

	res := ws.Fetch(context.Background(), "smart football socks")
	assert.False(t, res.OK)
	assert.Equal(t, analysis.ErrKindUnavailable, res.ErrKind)
	comps := res.Payload["competitors"].([]analysis.Competitor)
	require.Len(t, comps, 3)
}
