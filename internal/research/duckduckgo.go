package research

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const clientUserAgent = "crosstalk (+https://github.com/duskline/crosstalk)"

// DuckDuckGo queries the instant answer API. The endpoint is
// configurable so tests can point it at a local server.
type DuckDuckGo struct {
	endpoint   string
	maxResults int
	client     *http.Client
}

func NewDuckDuckGo(endpoint string, timeout time.Duration, maxResults int) *DuckDuckGo {
	return &DuckDuckGo{
		endpoint:   endpoint,
		maxResults: maxResults,
		client:     &http.Client{Timeout: timeout},
	}
}

type instantAnswer struct {
	Heading       string         `json:"Heading"`
	AbstractText  string         `json:"AbstractText"`
	AbstractURL   string         `json:"AbstractURL"`
	RelatedTopics []relatedTopic `json:"RelatedTopics"`
}

type relatedTopic struct {
	Text     string         `json:"Text"`
	FirstURL string         `json:"FirstURL"`
	Topics   []relatedTopic `json:"Topics"`
}

func (d *DuckDuckGo) Search(ctx context.Context, query string) ([]Result, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("search: build request: %w", err)
	}
	req.Header.Set("User-Agent", clientUserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: unexpected status %s", resp.Status)
	}

	var answer instantAnswer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return nil, fmt.Errorf("search: decode response: %w", err)
	}

	return d.collect(answer), nil
}

func (d *DuckDuckGo) collect(answer instantAnswer) []Result {
	var results []Result

	if answer.AbstractText != "" {
		title := answer.Heading
		if title == "" {
			title = answer.AbstractText
		}
		results = append(results, Result{
			Title:   title,
			Snippet: answer.AbstractText,
			URL:     answer.AbstractURL,
		})
	}

	results = appendTopics(results, answer.RelatedTopics, d.maxResults)
	if len(results) > d.maxResults {
		results = results[:d.maxResults]
	}
	return results
}

func appendTopics(results []Result, topics []relatedTopic, max int) []Result {
	for _, topic := range topics {
		if len(results) >= max {
			break
		}
		if len(topic.Topics) > 0 {
			results = appendTopics(results, topic.Topics, max)
			continue
		}
		if topic.Text == "" {
			continue
		}

		title, snippet := topic.Text, topic.Text
		if idx := strings.Index(topic.Text, " - "); idx > 0 {
			title = topic.Text[:idx]
			snippet = topic.Text[idx+3:]
		}
		results = append(results, Result{Title: title, Snippet: snippet, URL: topic.FirstURL})
	}
	return results
}
