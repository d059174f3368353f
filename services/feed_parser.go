package services

import (
	"encoding/xml"
	"errors"
	"strings"
	"time"
)

var ErrInvalidFeed = errors.New("invalid xml: missing rss/channel structure")

// ParsedJob is one normalized job posting extracted from a feed item.
// It is the unit carried inside batch payloads, so every field is
// JSON-serializable.
type ParsedJob struct {
	ExternalID  string    `json:"external_id"`
	Title       string    `json:"title"`
	Company     string    `json:"company"`
	Location    string    `json:"location"`
	JobType     string    `json:"job_type"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	Link        string    `json:"link"`
	ImageURL    string    `json:"image_url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

type rssDocument struct {
	XMLName xml.Name    `xml:"rss"`
	Channel *rssChannel `xml:"channel"`
}

type rssChannel struct {
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	ID          string   `xml:"id"`
	GUID        rssGUID  `xml:"guid"`
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	Description string   `xml:"description"`
	Encoded     string   `xml:"encoded"`  // content:encoded
	Location    string   `xml:"location"` // job_listing:location
	JobType     string   `xml:"job_type"` // job_listing:job_type
	Company     string   `xml:"company"`  // job_listing:company
	Media       rssMedia `xml:"content"`  // media:content
	PubDate     string   `xml:"pubDate"`
}

type rssGUID struct {
	Value string `xml:",chardata"`
}

type rssMedia struct {
	URL string `xml:"url,attr"`
}

var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
}

// ParseFeed normalizes raw RSS content into an ordered job sequence.
// A document without an rss/channel envelope is a parse failure, not an
// empty result. External IDs fall back id → guid → link; a record whose
// candidates are all empty is still emitted with an empty ID. Missing
// publication dates default to now.
func ParseFeed(data []byte, now time.Time) ([]ParsedJob, error) {
	var doc rssDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, ErrInvalidFeed
	}
	if doc.Channel == nil {
		return nil, ErrInvalidFeed
	}

	jobs := make([]ParsedJob, 0, len(doc.Channel.Items))
	for _, item := range doc.Channel.Items {
		externalID := firstNonEmpty(item.ID, strings.TrimSpace(item.GUID.Value), item.Link)

		content := item.Encoded
		if content == "" {
			content = item.Description
		}

		jobs = append(jobs, ParsedJob{
			ExternalID:  externalID,
			Title:       item.Title,
			Company:     item.Company,
			Location:    item.Location,
			JobType:     item.JobType,
			Description: item.Description,
			Content:     content,
			Link:        item.Link,
			ImageURL:    item.Media.URL,
			PublishedAt: parsePubDate(item.PubDate, now),
		})
	}

	return jobs, nil
}

func parsePubDate(raw string, now time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now
	}
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return now
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
