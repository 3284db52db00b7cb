package torznab

import (
	"encoding/xml"
	"time"
)

// Indexer is one indexer configured on the search provider.
type Indexer struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Protocol string `json:"protocol"`
	Enable   bool   `json:"enable"`

	Capabilities IndexerCaps `json:"capabilities"`
}

// IndexerCaps carries the capability flags relevant to cross-seeding.
type IndexerCaps struct {
	SearchParams []string `json:"searchParams,omitempty"`
}

// SupportsSearch reports whether the indexer accepts free-text queries.
func (i Indexer) SupportsSearch() bool {
	return len(i.Capabilities.SearchParams) > 0
}

// SearchResult is one uniform release record parsed from a Torznab item.
type SearchResult struct {
	GUID        string
	Title       string
	Link        string
	Size        int64
	PubDate     time.Time
	InfoHash    string
	IndexerID   int64
	IndexerName string
}

// IndexerError records one indexer's failure during a fan-out search.
type IndexerError struct {
	IndexerID int64
	Indexer   string
	Error     string
}

// SearchOutcome aggregates a fan-out search across indexers.
type SearchOutcome struct {
	Results      []SearchResult
	IndexersUsed int
	Skipped      int
	Errors       []IndexerError
}

// feed is the root RSS document of a Torznab search response.
type feed struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Items []item `xml:"item"`
	} `xml:"channel"`
}

type item struct {
	Title     string `xml:"title"`
	GUID      string `xml:"guid"`
	Link      string `xml:"link"`
	PubDate   string `xml:"pubDate"`
	Size      int64  `xml:"size"`
	Enclosure struct {
		URL    string `xml:"url,attr"`
		Length int64  `xml:"length,attr"`
	} `xml:"enclosure"`
	Attributes []attribute `xml:"attr"`
}

type attribute struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

func (it *item) attr(name string) string {
	for _, a := range it.Attributes {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
}

func (it *item) pubDate() time.Time {
	for _, layout := range pubDateLayouts {
		if parsed, err := time.Parse(layout, it.PubDate); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

func (it *item) toResult(indexerID int64, indexerName string) SearchResult {
	link := it.Link
	if link == "" {
		link = it.Enclosure.URL
	}
	size := it.Size
	if size == 0 && it.Enclosure.Length > 0 {
		size = it.Enclosure.Length
	}
	if size == 0 {
		size = -1 // unknown
	}

	return SearchResult{
		GUID:        it.GUID,
		Title:       it.Title,
		Link:        link,
		Size:        size,
		PubDate:     it.pubDate(),
		InfoHash:    it.attr("infohash"),
		IndexerID:   indexerID,
		IndexerName: indexerName,
	}
}
