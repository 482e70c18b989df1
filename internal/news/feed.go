package news

import (
	"encoding/xml"
	"errors"
	"strings"
	"time"
)

// entry is one headline from an RSS 2.0 or Atom feed.
type entry struct {
	Title       string
	Link        string
	PublishedAt time.Time
}

type rssDoc struct {
	Channel struct {
		Title string `xml:"title"`
		Items []struct {
			Title   string `xml:"title"`
			Link    string `xml:"link"`
			GUID    string `xml:"guid"`
			PubDate string `xml:"pubDate"`
		} `xml:"item"`
	} `xml:"channel"`
}

type atomDoc struct {
	Title   string `xml:"title"`
	Entries []struct {
		Title string `xml:"title"`
		Links []struct {
			Href string `xml:"href,attr"`
			Rel  string `xml:"rel,attr"`
		} `xml:"link"`
		Published string `xml:"published"`
		Updated   string `xml:"updated"`
	} `xml:"entry"`
}

var errUnknownFeed = errors.New("unrecognised feed format")

// parseFeed returns the feed title and its entries.
func parseFeed(raw []byte, now time.Time) (string, []entry, error) {
	var root struct {
		XMLName xml.Name
	}
	if err := xml.Unmarshal(raw, &root); err != nil {
		return "", nil, err
	}
	switch strings.ToLower(root.XMLName.Local) {
	case "rss":
		var doc rssDoc
		if err := xml.Unmarshal(raw, &doc); err != nil {
			return "", nil, err
		}
		out := make([]entry, 0, len(doc.Channel.Items))
		for _, it := range doc.Channel.Items {
			link := strings.TrimSpace(it.Link)
			if link == "" {
				link = strings.TrimSpace(it.GUID)
			}
			out = append(out, entry{Title: clean(it.Title), Link: link, PublishedAt: parseTime(it.PubDate, now)})
		}
		return clean(doc.Channel.Title), out, nil
	case "feed":
		var doc atomDoc
		if err := xml.Unmarshal(raw, &doc); err != nil {
			return "", nil, err
		}
		out := make([]entry, 0, len(doc.Entries))
		for _, e := range doc.Entries {
			link := ""
			for _, l := range e.Links {
				if l.Rel == "" || l.Rel == "alternate" {
					link = strings.TrimSpace(l.Href)
					break
				}
			}
			published := e.Published
			if published == "" {
				published = e.Updated
			}
			out = append(out, entry{Title: clean(e.Title), Link: link, PublishedAt: parseTime(published, now)})
		}
		return clean(doc.Title), out, nil
	}
	return "", nil, errUnknownFeed
}

var timeLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2006-01-02 15:04:05",
}

func parseTime(raw string, fallback time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return fallback
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
