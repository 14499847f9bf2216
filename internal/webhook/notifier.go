// Package webhook pushes matched clauses to per-reference destinations.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrNoRoute indicates no destination is configured for a reference title.
var ErrNoRoute = errors.New("no webhook route")

type payload struct {
	Text string `json:"text"`
}

// Notifier posts {"text": ...} to the URL routed for a reference title.
type Notifier struct {
	client *resty.Client
	routes map[string]string
}

func NewNotifier(routes map[string]string, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	copied := make(map[string]string, len(routes))
	for title, url := range routes {
		copied[title] = url
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &Notifier{client: client, routes: copied}
}

// Route returns the destination for title.
func (n *Notifier) Route(title string) (string, bool) {
	url, ok := n.routes[title]
	return url, ok && url != ""
}

// Notify posts text to the destination routed for title. It returns
// ErrNoRoute when title has no destination.
func (n *Notifier) Notify(ctx context.Context, title, text string) error {
	url, ok := n.Route(title)
	if !ok {
		return fmt.Errorf("%w for %q", ErrNoRoute, title)
	}
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(payload{Text: text}).
		Post(url)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook %s returned %d", title, resp.StatusCode())
	}
	return nil
}
