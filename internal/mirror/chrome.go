package mirror

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// ChromeReader renders pages in headless Chrome and returns
// document.body.innerText.
type ChromeReader struct {
	timeout time.Duration
	opts    []chromedp.ExecAllocatorOption
}

func NewChromeReader(timeout time.Duration) *ChromeReader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("allow-file-access-from-files", true),
	)
	return &ChromeReader{timeout: timeout, opts: opts}
}

func (r *ChromeReader) ReadText(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, r.opts...)
	defer cancel()

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	var text string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Evaluate(`document.body.innerText`, &text),
	)
	if err != nil {
		return "", fmt.Errorf("chrome read failed: %w", err)
	}
	return text, nil
}
