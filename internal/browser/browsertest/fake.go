// Package browsertest provides an in-memory browser.Session for tests.
package browsertest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/smyja/web3event/internal/browser"
)

// Page is what the fake serves for a URL.
type Page struct {
	Log  []json.RawMessage
	HTML string
	Err  error
}

// Session serves canned network logs per URL.
type Session struct {
	mu        sync.Mutex
	pages     map[string]Page
	pending   []json.RawMessage
	current   string
	visited   []string
	closed    bool
	idleCalls int
}

var (
	_ browser.Session        = (*Session)(nil)
	_ browser.IdleWaiter     = (*Session)(nil)
	_ browser.DocumentReader = (*Session)(nil)
)

func NewSession() *Session {
	return &Session{pages: make(map[string]Page)}
}

// Serve registers the page returned for url.
func (s *Session) Serve(url string, p Page) *Session {
	s.mu.Lock()
	s.pages[url] = p
	s.mu.Unlock()
	return s
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("session closed")
	}
	s.visited = append(s.visited, url)
	s.current = url
	p, ok := s.pages[url]
	if !ok {
		return nil
	}
	if p.Err != nil {
		return p.Err
	}
	s.pending = append(s.pending, p.Log...)
	return nil
}

func (s *Session) NetworkLog(ctx context.Context) ([]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = nil
	return out, nil
}

func (s *Session) WaitNetworkIdle(ctx context.Context, _, _ time.Duration) error {
	s.mu.Lock()
	s.idleCalls++
	s.mu.Unlock()
	return ctx.Err()
}

func (s *Session) OuterHTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages[s.current].HTML, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) Visited() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.visited...)
}

func (s *Session) IdleCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idleCalls
}

// Factory returns a browser.Factory that always hands out s.
func (s *Session) Factory() browser.Factory {
	return func(context.Context) (browser.Session, error) { return s, nil }
}

// RequestEntry builds a Network.requestWillBeSent log entry for url.
func RequestEntry(url string) json.RawMessage {
	raw, _ := json.Marshal(map[string]any{
		"method": browser.MethodRequestWillBeSent,
		"params": map[string]any{
			"request": map[string]any{
				"url":     url,
				"method":  "GET",
				"headers": map[string]string{"Accept": "*/*"},
			},
		},
	})
	return raw
}
