package services

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const (
	feedFetchRetries   = 3
	feedFetchUserAgent = "JobImporter/1.0"
)

// FeedFetchError is returned once all fetch attempts are exhausted and
// carries the last observed failure.
type FeedFetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FeedFetchError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("network error fetching feed %s after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *FeedFetchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// FeedFetcher retrieves feed content with bounded retry and exponential
// backoff (1s, 2s). Each attempt applies the client timeout and reads
// the body to completion.
type FeedFetcher struct {
	client *http.Client
	sleep  func(time.Duration)
}

func NewFeedFetcher(timeout time.Duration) *FeedFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FeedFetcher{
		client: &http.Client{Timeout: timeout},
		sleep:  time.Sleep,
	}
}

func (f *FeedFetcher) Fetch(url string) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= feedFetchRetries; attempt++ {
		log.Printf("Fetching feed: %s (attempt %d/%d)", url, attempt, feedFetchRetries)

		body, err := f.fetchOnce(url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		log.Printf("Fetch attempt %d failed for %s: %v", attempt, url, err)

		// exponential backoff: 1s, 2s; no delay after the final attempt
		if attempt < feedFetchRetries {
			f.sleep(time.Duration(1<<(attempt-1)) * time.Second)
		}
	}

	return nil, &FeedFetchError{URL: url, Attempts: feedFetchRetries, Err: lastErr}
}

func (f *FeedFetcher) fetchOnce(url string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", feedFetchUserAgent)
	req.Header.Set("Accept", "application/xml, application/rss+xml, text/xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, resp.Status)
	}

	return io.ReadAll(resp.Body)
}
