package chatbot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/korylprince/redbox-chat/events"
)

// HistoryItem is one conversation in the history list
type HistoryItem struct {
	SessionID string
	Title     string
	Updated   time.Time
}

// History keeps the conversation list current from chat-response-end broadcasts
type History struct {
	mu    sync.Mutex
	items []HistoryItem
}

// NewHistory creates a new History with the given known items, most recent first
func NewHistory(items ...HistoryItem) *History {
	return &History{items: append([]HistoryItem(nil), items...)}
}

// Apply moves the ended session to the top, adding it if it is new. A blank
// title keeps the known title.
func (h *History) Apply(end events.ResponseEnd) {
	if end.SessionID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	item := HistoryItem{SessionID: end.SessionID, Title: end.Title, Updated: time.Now()}
	for i, it := range h.items {
		if it.SessionID != end.SessionID {
			continue
		}
		if item.Title == "" {
			item.Title = it.Title
		}
		h.items = append(h.items[:i], h.items[i+1:]...)
		break
	}
	h.items = append([]HistoryItem{item}, h.items...)
}

// Rename sets the title of a known session
func (h *History) Rename(sessionID, title string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.items {
		if h.items[i].SessionID == sessionID {
			h.items[i].Title = title
			return
		}
	}
}

// Items returns the conversation list, most recent first
func (h *History) Items() []HistoryItem {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]HistoryItem(nil), h.items...)
}

// Watch applies chat-response-end broadcasts until ctx is done
func (h *History) Watch(ctx context.Context, bus Subscriber) {
	watchResponseEnd(ctx, bus, h.Apply)
}

// PageTitle sets the page title from the first response of a new session
type PageTitle struct {
	mu    sync.Mutex
	title string
	set   bool
	onSet func(title string)
}

// NewPageTitle creates a new PageTitle. onSet is called once, with the first non-empty title.
func NewPageTitle(onSet func(title string)) *PageTitle {
	return &PageTitle{onSet: onSet}
}

// Apply handles one chat-response-end broadcast
func (p *PageTitle) Apply(end events.ResponseEnd) {
	if end.Title == "" {
		return
	}
	p.mu.Lock()
	if p.set {
		p.mu.Unlock()
		return
	}
	p.set = true
	p.title = end.Title
	p.mu.Unlock()

	if p.onSet != nil {
		p.onSet(end.Title)
	}
}

// Title returns the title, or "" before the first response
func (p *PageTitle) Title() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title
}

// Watch applies chat-response-end broadcasts until ctx is done
func (p *PageTitle) Watch(ctx context.Context, bus Subscriber) {
	watchResponseEnd(ctx, bus, p.Apply)
}

func watchResponseEnd(ctx context.Context, bus Subscriber, fn func(events.ResponseEnd)) {
	ch, unsubscribe := bus.Subscribe(ctx, events.TopicResponseEnd)
	go func() {
		defer unsubscribe()
		for evt := range ch {
			var end events.ResponseEnd
			if err := evt.Decode(&end); err != nil {
				continue
			}
			fn(end)
		}
	}()
}

// TitleClient renames sessions on the chat server
type TitleClient struct {
	baseURL string
	client  *http.Client
}

// NewTitleClient creates a new TitleClient for the API rooted at baseURL, e.g. http://localhost:8080/api/1.0
func NewTitleClient(baseURL string, client *http.Client) *TitleClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &TitleClient{baseURL: strings.TrimSuffix(baseURL, "/"), client: client}
}

type renameRequest struct {
	Name string `json:"name"`
}

type errorResponse struct {
	Code  int    `json:"code"`
	Error string `json:"error"`
}

// Rename sets the title of session id
func (t *TitleClient) Rename(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return errors.New("title cannot be empty")
	}

	body, err := json.Marshal(renameRequest{Name: title})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	u := fmt.Sprintf("%s/chat/%s/title/", t.baseURL, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var e errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Error != "" {
			return fmt.Errorf("rename failed: %d %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("rename failed: %s", resp.Status)
	}
	return nil
}
