package cdp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/mafredri/cdp/devtool"

	"github.com/drksbr/browserrelay/internal/logger"
)

var errNoPageTarget = errors.New("no page target available")

type ResolverOptions struct {
	Attempts   uint
	Interval   time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// TargetResolver turns a debugging port or endpoint into a page-level
// WebSocket debugger URL.
type TargetResolver struct {
	attempts uint
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger
}

func NewTargetResolver(opts ResolverOptions) *TargetResolver {
	if opts.Attempts == 0 {
		opts.Attempts = 15
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &TargetResolver{
		attempts: opts.Attempts,
		interval: opts.Interval,
		client:   opts.HTTPClient,
		logger:   logger.OrDiscard(opts.Logger).With("component", "cdp-targets"),
	}
}

// IsPageURL reports whether u already addresses a single page target.
func IsPageURL(u string) bool {
	return strings.Contains(u, "/devtools/page/")
}

// Resolve returns wsEndpoint untouched when it is a page URL. Otherwise it polls
// the browser's target list (on debugPort, or the host of wsEndpoint) until a
// navigable page shows up.
func (r *TargetResolver) Resolve(ctx context.Context, debugPort int, wsEndpoint string) (string, error) {
	if IsPageURL(wsEndpoint) {
		return wsEndpoint, nil
	}
	base, err := debugBaseURL(debugPort, wsEndpoint)
	if err != nil {
		return "", err
	}
	attempt := 0
	op := func() (string, error) {
		attempt++
		// devtool settles its host lookup on first use, including a failed
		// one, so each attempt gets a fresh handle.
		dt := devtool.New(base, devtool.WithClient(r.client))
		targets, err := dt.List(ctx)
		if err != nil {
			return "", fmt.Errorf("list targets: %w", err)
		}
		if t := pickPageTarget(targets); t != nil {
			return t.WebSocketDebuggerURL, nil
		}
		if created, err := dt.Create(ctx); err == nil && created.WebSocketDebuggerURL != "" {
			return created.WebSocketDebuggerURL, nil
		}
		return "", fmt.Errorf("%w in %d targets", errNoPageTarget, len(targets))
	}

	wsURL, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(r.interval)),
		backoff.WithMaxTries(r.attempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.logger.Info("waiting for page target", "base", base, "attempt", attempt, "retry_in", next, "error", err)
		}),
	)
	if err != nil {
		return "", fmt.Errorf("cannot reach CDP at %s after %d attempts: %w", base, attempt, err)
	}
	return wsURL, nil
}

// pickPageTarget prefers a page showing real content, then a new-tab page, then any page.
func pickPageTarget(targets []*devtool.Target) *devtool.Target {
	var newTab, anyPage *devtool.Target
	for _, t := range targets {
		if t == nil || t.Type != devtool.Page || t.WebSocketDebuggerURL == "" {
			continue
		}
		if anyPage == nil {
			anyPage = t
		}
		switch {
		case isNewTab(t.URL):
			if newTab == nil {
				newTab = t
			}
		case isInternalURL(t.URL):
		default:
			return t
		}
	}
	if newTab != nil {
		return newTab
	}
	return anyPage
}

func isNewTab(u string) bool {
	return strings.HasPrefix(u, "chrome://newtab") ||
		strings.HasPrefix(u, "chrome://new-tab-page") ||
		u == "about:blank"
}

func isInternalURL(u string) bool {
	for _, prefix := range []string{"chrome://", "chrome-extension://", "devtools://", "chrome-untrusted://"} {
		if strings.HasPrefix(u, prefix) {
			return true
		}
	}
	return false
}

func debugBaseURL(debugPort int, wsEndpoint string) (string, error) {
	if debugPort > 0 {
		return fmt.Sprintf("http://127.0.0.1:%d", debugPort), nil
	}
	if wsEndpoint == "" {
		return "", errors.New("either a debug port or a websocket endpoint is required")
	}
	u, err := url.Parse(wsEndpoint)
	if err != nil {
		return "", fmt.Errorf("parse websocket endpoint: %w", err)
	}
	scheme := "http"
	if u.Scheme == "wss" || u.Scheme == "https" {
		scheme = "https"
	}
	if u.Host == "" {
		return "", fmt.Errorf("websocket endpoint %q has no host", wsEndpoint)
	}
	return scheme + "://" + u.Host, nil
}
