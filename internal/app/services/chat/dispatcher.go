package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/infogenie/backend/internal/app/domain/chat"
	"github.com/infogenie/backend/internal/app/metrics"
	"github.com/infogenie/backend/internal/config"
	"github.com/infogenie/backend/pkg/logger"
)

// ErrUnsupportedProvider is returned when dispatch is asked for a provider
// that is not in the configured set.
var ErrUnsupportedProvider = errors.New("unsupported provider")

// DispatchError is the terminal failure after all attempts against one
// provider are exhausted. It carries the final attempt's upstream detail
// verbatim for diagnostics.
type DispatchError struct {
	Provider string
	Attempts int
	TimedOut bool
	Status   int
	Body     string
	Detail   string
}

func (e *DispatchError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("provider %s timed out after %d attempts", e.Provider, e.Attempts)
	}
	if e.Status != 0 {
		return fmt.Sprintf("provider %s failed after %d attempts: status %d: %s", e.Provider, e.Attempts, e.Status, e.Body)
	}
	return fmt.Sprintf("provider %s failed after %d attempts: %s", e.Provider, e.Attempts, e.Detail)
}

const defaultBackoffBase = time.Second

// Dispatcher selects among configured providers and retries the default
// provider with exponential backoff. Secondary providers get a single
// attempt so a caller-chosen fallback does not compound two retry layers.
type Dispatcher struct {
	clients         map[string]*client
	defaultProvider string
	backoffBase     time.Duration
	log             *logger.Logger

	// sleep is replaced in tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDispatcher builds the closed provider lookup table from configuration.
func NewDispatcher(providers []config.Provider, log *logger.Logger) (*Dispatcher, error) {
	if log == nil {
		log = logger.NewDefault("chat-dispatcher")
	}

	d := &Dispatcher{
		clients:     make(map[string]*client, len(providers)),
		backoffBase: defaultBackoffBase,
		log:         log,
		sleep:       sleepCtx,
	}
	for _, p := range providers {
		if _, dup := d.clients[p.Name]; dup {
			return nil, fmt.Errorf("duplicate provider %s", p.Name)
		}
		d.clients[p.Name] = newClient(p, log)
		if p.Default {
			d.defaultProvider = p.Name
		}
	}
	if d.defaultProvider == "" {
		return nil, errors.New("no default provider configured")
	}
	return d, nil
}

// DefaultProvider returns the name of the default provider.
func (d *Dispatcher) DefaultProvider() string { return d.defaultProvider }

// DefaultModel returns the default model of the named provider, or of the
// default provider when name is empty.
func (d *Dispatcher) DefaultModel(name string) string {
	if name == "" {
		name = d.defaultProvider
	}
	if c, ok := d.clients[strings.ToLower(name)]; ok {
		return c.cfg.Model
	}
	return ""
}

// Models returns the provider name to default model mapping for discovery.
func (d *Dispatcher) Models() map[string]string {
	out := make(map[string]string, len(d.clients))
	for name, c := range d.clients {
		out[name] = c.cfg.Model
	}
	return out
}

// Invoke sends the conversation to the named provider. An empty provider
// selects the default; an empty model selects the provider's default model.
func (d *Dispatcher) Invoke(ctx context.Context, provider, model string, messages []chat.Message) (chat.Result, error) {
	if provider == "" {
		provider = d.defaultProvider
	}
	provider = strings.ToLower(strings.TrimSpace(provider))

	c, ok := d.clients[provider]
	if !ok {
		return chat.Result{}, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
	if model == "" {
		model = c.cfg.Model
	}

	attempts := c.cfg.MaxRetries
	start := time.Now()
	defer func() { metrics.RecordDispatch(provider, time.Since(start)) }()

	var last attemptResult
	for attempt := 0; attempt < attempts; attempt++ {
		last = c.complete(ctx, model, messages)
		if last.kind == attemptSuccess {
			metrics.RecordDispatchAttempt(provider, "ok")
			return chat.Result{
				Content:  last.text,
				Provider: provider,
				Model:    model,
				Attempts: attempt + 1,
			}, nil
		}

		metrics.RecordDispatchAttempt(provider, outcomeLabel(last))
		if attempt < attempts-1 {
			wait := d.backoffBase << uint(attempt)
			d.log.With("provider", provider).With("attempt", attempt+1).
				Warnf("attempt failed (%s), retrying in %s", describeAttempt(last), wait)
			if err := d.sleep(ctx, wait); err != nil {
				return chat.Result{}, err
			}
		}
	}

	return chat.Result{}, &DispatchError{
		Provider: provider,
		Attempts: attempts,
		TimedOut: last.kind == attemptTimeout,
		Status:   last.status,
		Body:     last.body,
		Detail:   last.detail,
	}
}

func outcomeLabel(r attemptResult) string {
	switch r.kind {
	case attemptTimeout:
		return "timeout"
	case attemptUpstreamError:
		return "upstream_error"
	default:
		return "transport_error"
	}
}

func describeAttempt(r attemptResult) string {
	switch r.kind {
	case attemptTimeout:
		return "timeout"
	case attemptUpstreamError:
		return fmt.Sprintf("status %d", r.status)
	default:
		return r.detail
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
