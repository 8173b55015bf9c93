package crawler

import (
	"fmt"
	"time"
)

type EventType string

const (
	EventStarted   EventType = "started"
	EventScraping  EventType = "scraping"
	EventItemFound EventType = "item_found"
	EventError     EventType = "error"
	EventWaiting   EventType = "waiting"
	EventFinished  EventType = "finished"
)

// Event reports crawl progress to an optional listener.
type Event struct {
	Type       EventType     `json:"type"`
	Competitor string        `json:"competitor"`
	URL        string        `json:"url,omitempty"`
	Message    string        `json:"message,omitempty"`
	Delay      time.Duration `json:"delay,omitempty"`
	Count      int           `json:"count,omitempty"`
	Time       time.Time     `json:"time"`
}

func (e Event) String() string {
	switch e.Type {
	case EventWaiting:
		return fmt.Sprintf("[%s] waiting %s", e.Competitor, e.Delay)
	case EventFinished:
		return fmt.Sprintf("[%s] finished, %d items", e.Competitor, e.Count)
	case EventScraping, EventItemFound, EventError:
		return fmt.Sprintf("[%s] %s %s %s", e.Competitor, e.Type, e.URL, e.Message)
	default:
		return fmt.Sprintf("[%s] %s %s", e.Competitor, e.Type, e.Message)
	}
}
