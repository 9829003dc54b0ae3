// Package browser manages headless Chrome sessions used by the site adapters.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

var (
	// ErrSessionClosed is returned when running actions on a closed session
	ErrSessionClosed = errors.New("browser session closed")
	// ErrCallTimeout is returned when a browser call exceeds its time bound
	ErrCallTimeout = errors.New("browser call timed out")
)

// BlockedResourceTypes are dropped by scraping sessions
var BlockedResourceTypes = []network.ResourceType{
	network.ResourceTypeStylesheet,
	network.ResourceTypeFont,
	network.ResourceTypeImage,
}

// IsBlockedResource reports whether scraping sessions drop requests of type rt
func IsBlockedResource(rt network.ResourceType) bool {
	for _, blocked := range BlockedResourceTypes {
		if rt == blocked {
			return true
		}
	}
	return false
}

// Options configures browser launch
type Options struct {
	ExecPath     string
	Headless     bool
	UserAgent    string
	WindowWidth  int
	WindowHeight int
	CallTimeout  time.Duration
}

// DefaultOptions returns the fixed viewport and timeouts used in production
func DefaultOptions() Options {
	return Options{
		Headless:     true,
		UserAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		WindowWidth:  1920,
		WindowHeight: 1080,
		CallTimeout:  60 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.UserAgent == "" {
		o.UserAgent = d.UserAgent
	}
	if o.WindowWidth <= 0 || o.WindowHeight <= 0 {
		o.WindowWidth, o.WindowHeight = d.WindowWidth, d.WindowHeight
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = d.CallTimeout
	}
	return o
}

// Session is one browser process with a single tab. The zero value is a
// closed session; Close is safe to call any number of times.
type Session struct {
	ctx           context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	callTimeout   time.Duration
	closed        atomic.Bool
	closeOnce     sync.Once
}

// Run executes actions with the per-call time bound. Cancelling ctx aborts
// the call without closing the session.
func (s *Session) Run(ctx context.Context, actions ...chromedp.Action) error {
	if s == nil || s.ctx == nil || s.closed.Load() {
		return ErrSessionClosed
	}

	runCtx, cancel := context.WithTimeout(s.ctx, s.callTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w after %s: %v", ErrCallTimeout, s.callTimeout, err)
		}
		return err
	}
	return nil
}

// Closed reports whether the session has been closed
func (s *Session) Closed() bool {
	return s == nil || s.ctx == nil || s.closed.Load()
}

// Close shuts the browser down. Safe on nil and repeated calls.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.cancelBrowser != nil {
			s.cancelBrowser()
		}
		if s.cancelAlloc != nil {
			s.cancelAlloc()
		}
	})
}

// Manager launches sessions with a shared configuration
type Manager struct {
	opts Options
	log  zerolog.Logger
}

// NewManager creates a browser session manager
func NewManager(opts Options, log zerolog.Logger) *Manager {
	return &Manager{
		opts: opts.withDefaults(),
		log:  log.With().Str("component", "browser").Logger(),
	}
}

// Launch starts a browser with every resource type enabled, for chart capture
func (m *Manager) Launch(ctx context.Context) (*Session, error) {
	return m.launch(ctx, false)
}

// LaunchForScraping starts a browser that drops stylesheet, font and image requests
func (m *Manager) LaunchForScraping(ctx context.Context) (*Session, error) {
	return m.launch(ctx, true)
}

// Close releases a session. Safe with nil or already closed sessions.
func (m *Manager) Close(s *Session) {
	if s.Closed() {
		return
	}
	s.Close()
	m.log.Debug().Msg("Browser session closed")
}

func (m *Manager) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", m.opts.Headless),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(m.opts.WindowWidth, m.opts.WindowHeight),
		chromedp.UserAgent(m.opts.UserAgent),
	)
	if m.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(m.opts.ExecPath))
	}
	return opts
}

func (m *Manager) launch(ctx context.Context, forScraping bool) (*Session, error) {
	// The browser outlives the launching call, so it hangs off Background
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), m.allocatorOptions()...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			m.log.Debug().Msgf(format, args...)
		}),
		chromedp.WithErrorf(func(format string, args ...interface{}) {
			m.log.Warn().Msgf(format, args...)
		}),
	)

	sess := &Session{
		ctx:           browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
		callTimeout:   m.opts.CallTimeout,
	}

	var startup []chromedp.Action
	if forScraping {
		m.blockHeavyResources(browserCtx)
		startup = append(startup, fetch.Enable().WithPatterns(blockedPatterns()))
	}

	// The first Run allocates the browser; it must not carry a deadline or the
	// browser would be torn down when that deadline fires
	errCh := make(chan error, 1)
	go func() { errCh <- chromedp.Run(browserCtx, startup...) }()

	timer := time.NewTimer(m.opts.CallTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		if err != nil {
			sess.Close()
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
	case <-timer.C:
		sess.Close()
		return nil, fmt.Errorf("failed to launch browser: %w after %s", ErrCallTimeout, m.opts.CallTimeout)
	case <-ctx.Done():
		sess.Close()
		return nil, fmt.Errorf("failed to launch browser: %w", ctx.Err())
	}

	m.log.Debug().Bool("scraping", forScraping).Msg("Browser session launched")
	return sess, nil
}

func blockedPatterns() []*fetch.RequestPattern {
	patterns := make([]*fetch.RequestPattern, 0, len(BlockedResourceTypes))
	for _, rt := range BlockedResourceTypes {
		patterns = append(patterns, &fetch.RequestPattern{
			URLPattern:   "*",
			ResourceType: rt,
			RequestStage: fetch.RequestStageRequest,
		})
	}
	return patterns
}

// blockHeavyResources fails paused requests for blocked types and lets the
// rest through
func (m *Manager) blockHeavyResources(browserCtx context.Context) {
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		paused, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		// Commands cannot be issued from the listener goroutine itself
		go func() {
			var action chromedp.Action = fetch.ContinueRequest(paused.RequestID)
			if IsBlockedResource(paused.ResourceType) {
				action = fetch.FailRequest(paused.RequestID, network.ErrorReasonBlockedByClient)
			}
			if err := chromedp.Run(browserCtx, action); err != nil && browserCtx.Err() == nil {
				m.log.Debug().Err(err).Str("resource_type", string(paused.ResourceType)).Msg("Failed to resolve intercepted request")
			}
		}()
	})
}
