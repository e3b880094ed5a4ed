package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// BrowserPool renders pages in headless Chrome tabs sharing one allocator.
// At most MaxTabs pages render at once.
type BrowserPool struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	logger   *zap.Logger
	config   *BrowserConfig
	tabs     chan struct{}
}

// BrowserConfig configures browser behavior
type BrowserConfig struct {
	Timeout       time.Duration
	UserAgent     string
	ProxyURL      string
	DisableImages bool
	WindowWidth   int
	WindowHeight  int
	MaxTabs       int
	MaxScrolls    int
}

// DefaultBrowserConfig returns sensible defaults
func DefaultBrowserConfig() *BrowserConfig {
	return &BrowserConfig{
		Timeout:       30 * time.Second,
		UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		DisableImages: true,
		WindowWidth:   1920,
		WindowHeight:  1080,
		MaxTabs:       2,
		MaxScrolls:    2,
	}
}

// NewBrowserPool creates a new browser pool. Chrome itself starts lazily on
// the first render.
func NewBrowserPool(logger *zap.Logger, config *BrowserConfig) *BrowserPool {
	if config == nil {
		config = DefaultBrowserConfig()
	}
	if config.MaxTabs <= 0 {
		config.MaxTabs = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Headless,
		chromedp.UserAgent(config.UserAgent),
		chromedp.WindowSize(config.WindowWidth, config.WindowHeight),
	)
	if config.ProxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(config.ProxyURL))
	}
	if config.DisableImages {
		opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &BrowserPool{
		allocCtx: allocCtx,
		cancel:   cancel,
		logger:   logger,
		config:   config,
		tabs:     make(chan struct{}, config.MaxTabs),
	}
}

// Close shuts down the browser
func (p *BrowserPool) Close() {
	p.cancel()
}

// Render loads url in a fresh tab, scrolls to trigger lazy content and
// returns the document HTML. The tab is closed when ctx is done.
func (p *BrowserPool) Render(ctx context.Context, url string) (string, error) {
	select {
	case p.tabs <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-p.tabs }()

	tabCtx, cancel := chromedp.NewContext(p.allocCtx)
	defer cancel()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, p.config.Timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	html, err := p.fetchPage(tabCtx, url)
	if err != nil {
		return "", err
	}
	if p.config.MaxScrolls > 0 {
		if err := p.scrollToBottom(tabCtx, p.config.MaxScrolls, 500*time.Millisecond); err != nil {
			p.logger.Debug("Scroll failed, keeping first render", zap.String("url", url), zap.Error(err))
			return html, nil
		}
		if again, err := p.outerHTML(tabCtx); err == nil {
			html = again
		}
	}
	return html, nil
}

func (p *BrowserPool) fetchPage(ctx context.Context, url string) (string, error) {
	p.logger.Debug("Rendering page", zap.String("url", url))

	if err := chromedp.Run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return "", fmt.Errorf("failed to render page: %w", err)
	}

	html, err := p.outerHTML(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read page: %w", err)
	}

	p.logger.Debug("Page rendered", zap.String("url", url), zap.Int("length", len(html)))
	return html, nil
}

func (p *BrowserPool) outerHTML(ctx context.Context) (string, error) {
	var html string
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		node, err := dom.GetDocument().Do(ctx)
		if err != nil {
			return err
		}
		html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
		return err
	}))
	return html, err
}

// scrollToBottom scrolls the page to load lazy content
func (p *BrowserPool) scrollToBottom(ctx context.Context, maxScrolls int, delay time.Duration) error {
	for i := 0; i < maxScrolls; i++ {
		if err := chromedp.Run(ctx,
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
			chromedp.Sleep(delay),
		); err != nil {
			return err
		}
	}
	return nil
}
