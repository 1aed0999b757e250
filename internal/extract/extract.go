// Package extract turns raw index and detail payloads into typed records.
// Every function here is pure: bytes and a parsed document in, records out,
// no I/O. Missing data yields nil, never an error; only a missing or
// malformed index listing is an error, because the run cannot proceed
// without it.
package extract

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/imdb-chart-crawler/internal/catalog"
)

var (
	yearPattern    = regexp.MustCompile(`\d{4}`)
	hoursPattern   = regexp.MustCompile(`(\d+)H`)
	minutesPattern = regexp.MustCompile(`(\d+)M`)
)

// indexListing mirrors the JSON-LD ItemList block embedded in the index page.
type indexListing struct {
	ItemListElement []struct {
		Item struct {
			Name            string `json:"name"`
			URL             string `json:"url"`
			Duration        string `json:"duration"`
			AggregateRating *struct {
				RatingValue float64 `json:"ratingValue"`
			} `json:"aggregateRating"`
		} `json:"item"`
	} `json:"itemListElement"`
}

// ParseIndex locates the ItemList JSON-LD script in the index payload and
// returns one work item per listed entry, in listing order, truncated to
// topK. A missing or malformed block is a *catalog.FormatError.
func ParseIndex(payload []byte, topK int) ([]catalog.WorkItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return nil, &catalog.FormatError{Reason: "unparsable index payload", Err: err}
	}

	var raw string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if text := s.Text(); strings.Contains(text, "ItemList") {
			raw = text
			return false
		}
		return true
	})
	if raw == "" {
		return nil, &catalog.FormatError{Reason: "ItemList JSON-LD block not found"}
	}

	var listing indexListing
	if err := json.Unmarshal([]byte(raw), &listing); err != nil {
		return nil, &catalog.FormatError{Reason: "invalid ItemList JSON", Err: err}
	}

	elements := listing.ItemListElement
	if topK > 0 && len(elements) > topK {
		elements = elements[:topK]
	}

	items := make([]catalog.WorkItem, 0, len(elements))
	for _, elem := range elements {
		item := catalog.WorkItem{
			DetailURL:   elem.Item.URL,
			Title:       elem.Item.Name,
			DurationRaw: elem.Item.Duration,
		}
		if elem.Item.AggregateRating != nil {
			rating := elem.Item.AggregateRating.RatingValue
			item.Rating = &rating
		}
		items = append(items, item)
	}
	return items, nil
}

// NewDocument parses a detail payload for the Extract helpers below.
func NewDocument(payload []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(payload))
}

// ExtractYear pulls the release year from the detail page: the first 4-digit
// run inside the release-date element. Absent element or digits means nil.
func ExtractYear(doc *goquery.Document) *int {
	sel := doc.Find(`li[data-testid="title-details-releasedate"]`).First()
	if sel.Length() == 0 {
		return nil
	}
	match := yearPattern.FindString(sel.Text())
	if match == "" {
		return nil
	}
	year, err := strconv.Atoi(match)
	if err != nil {
		return nil
	}
	return &year
}

// ExtractMetascore pulls the metascore, when the page has one.
func ExtractMetascore(doc *goquery.Document) *int {
	sel := doc.Find(`span.metacritic-score-box`).First()
	if sel.Length() == 0 {
		return nil
	}
	score, err := strconv.Atoi(strings.TrimSpace(sel.Text()))
	if err != nil {
		return nil
	}
	return &score
}

// ExtractCast returns up to limit cast entries in document order. Position is
// the 1-based index of the cast item on the page; items without an actor
// name are skipped, never substituted.
func ExtractCast(doc *goquery.Document, movieTitle string, limit int) []catalog.CastEntry {
	section := doc.Find(`section[data-testid="title-cast"]`).First()
	if section.Length() == 0 {
		return nil
	}

	var entries []catalog.CastEntry
	section.Find(`div[data-testid="title-cast-item"]`).EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= limit {
			return false
		}
		name := strings.TrimSpace(s.Find(`a[data-testid="title-cast-item__actor"]`).First().Text())
		if name == "" {
			return true
		}
		entries = append(entries, catalog.CastEntry{
			MovieTitle:    movieTitle,
			ActorName:     name,
			PositionOrder: i + 1,
		})
		return true
	})
	return entries
}

// DurationToMinutes converts an ISO-8601-like duration token (PnHnM) to
// minutes. Unmatched components contribute zero; an absent input or a zero
// total means "no duration known" and yields nil.
func DurationToMinutes(raw string) *int {
	if raw == "" {
		return nil
	}
	total := 0
	if m := hoursPattern.FindStringSubmatch(raw); m != nil {
		hours, _ := strconv.Atoi(m[1])
		total += hours * 60
	}
	if m := minutesPattern.FindStringSubmatch(raw); m != nil {
		minutes, _ := strconv.Atoi(m[1])
		total += minutes
	}
	if total == 0 {
		return nil
	}
	return &total
}

// Entry assembles the catalog record for one work item from its detail page,
// reusing the fields the index already provided.
func Entry(doc *goquery.Document, item catalog.WorkItem) catalog.CatalogEntry {
	return catalog.CatalogEntry{
		Title:           item.Title,
		Year:            ExtractYear(doc),
		Rating:          item.Rating,
		DurationMinutes: DurationToMinutes(item.DurationRaw),
		Metascore:       ExtractMetascore(doc),
	}
}
