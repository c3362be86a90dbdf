package authn

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/authgate/internal/platform/httpx"
)

// Decision outcomes reported to a DecisionObserver.
const (
	OutcomePublic  = "public"
	OutcomeGranted = "granted"
	OutcomeDenied  = "denied"
)

// Matcher decides whether a path requires authentication.
type Matcher interface {
	RequiresAuth(path string) bool
}

// DecisionObserver receives one outcome per request passing the middleware.
type DecisionObserver interface {
	ObserveAuthDecision(outcome string)
}

// Middleware gates protected paths behind an Extractor. It holds only
// immutable configuration and is safe for concurrent use.
type Middleware struct {
	matcher   Matcher
	extractor Extractor
	logger    *slog.Logger
	observer  DecisionObserver
}

// Handler wraps next.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.matcher.RequiresAuth(r.URL.Path) {
			m.observe(r, OutcomePublic)
			next.ServeHTTP(w, r)
			return
		}
		user, err := m.extractor.AuthenticatedUser(r)
		if err != nil {
			m.observe(r, OutcomeDenied)
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		m.observe(r, OutcomeGranted, slog.Int64("user_id", user.ID))
		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
	})
}

func (m *Middleware) observe(r *http.Request, outcome string, attrs ...slog.Attr) {
	if m.observer != nil {
		m.observer.ObserveAuthDecision(outcome)
	}
	if m.logger == nil {
		return
	}
	attrs = append(attrs, slog.String("path", r.URL.Path), slog.String("outcome", outcome))
	m.logger.LogAttrs(r.Context(), slog.LevelDebug, "auth decision", attrs...)
}

// Builder composes a Middleware. The same builder serves production wiring
// and tests.
type Builder struct {
	rules      []PathRule
	fallback   Policy
	matcher    Matcher
	extractors []Extractor
	logger     *slog.Logger
	observer   DecisionObserver
}

// NewBuilder starts an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Rules appends path rules, evaluated in the order given.
func (b *Builder) Rules(rules ...PathRule) *Builder {
	b.rules = append(b.rules, rules...)
	return b
}

// DefaultPolicy sets the policy for paths matching no rule.
func (b *Builder) DefaultPolicy(p Policy) *Builder {
	b.fallback = p
	return b
}

// Matcher replaces rule compilation with a ready Matcher.
func (b *Builder) Matcher(m Matcher) *Builder {
	b.matcher = m
	return b
}

// Extractor appends an extractor. Several extractors are tried in order.
func (b *Builder) Extractor(e Extractor) *Builder {
	if e != nil {
		b.extractors = append(b.extractors, e)
	}
	return b
}

// Logger sets the decision logger.
func (b *Builder) Logger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// Observer sets the decision observer.
func (b *Builder) Observer(o DecisionObserver) *Builder {
	b.observer = o
	return b
}

// Build validates the configuration and returns the Middleware. Without an
// extractor the session extractor is used.
func (b *Builder) Build() (*Middleware, error) {
	matcher := b.matcher
	if matcher == nil {
		if b.fallback == 0 {
			return nil, errors.New("authn: default policy must be set explicitly")
		}
		pm, err := NewPathMatcher(b.fallback, b.rules...)
		if err != nil {
			return nil, err
		}
		matcher = pm
	}

	var extractor Extractor
	switch len(b.extractors) {
	case 0:
		extractor = SessionExtractor{}
	case 1:
		extractor = b.extractors[0]
	default:
		extractor = ChainExtractor(append([]Extractor(nil), b.extractors...))
	}

	return &Middleware{
		matcher:   matcher,
		extractor: extractor,
		logger:    b.logger,
		observer:  b.observer,
	}, nil
}
