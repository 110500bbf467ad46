// Package verify is the orchestrator: it routes a query through
// classification, translation, deterministic evaluation and comparison,
// with the cache short-circuiting repeat questions. Every call returns a
// well-formed Verdict; pipeline failures become verdicts with an error
// tag, never a Go error to the caller.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"qwed/internal/audit"
	"qwed/internal/cache"
	"qwed/internal/classify"
	"qwed/internal/compare"
	"qwed/internal/engine"
	"qwed/internal/provider"
	"qwed/internal/translate"
	"qwed/internal/types"
)

// State names a stage of the verification pipeline, used for logging and
// failure attribution.
type State string

const (
	StateClassifying State = "classifying"
	StateTranslating State = "translating"
	StateEvaluating  State = "evaluating"
	StateComparing   State = "comparing"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Stats is a point-in-time snapshot of the router's counters.
type Stats struct {
	Calls                int64 `json:"calls"`
	CacheHits            int64 `json:"cache_hits"`
	VerificationFailures int64 `json:"verification_failures"`
}

// Options assembles a Router.
type Options struct {
	Translator *translate.Translator
	Engines    *engine.Registry
	Comparator *compare.Comparator
	Cache      cache.Store
	Audit      audit.Sink
	Logger     *zap.Logger
}

// Router is the verification orchestrator. Safe for concurrent use.
type Router struct {
	translator *translate.Translator
	engines    *engine.Registry
	comparator *compare.Comparator
	cache      cache.Store
	audit      audit.Sink
	logger     *zap.Logger
	group      singleflight.Group

	calls     atomic.Int64
	cacheHits atomic.Int64
	failures  atomic.Int64
}

// NewRouter builds a router from its parts. Nil Cache, Audit and Logger
// are replaced with no-op implementations.
func NewRouter(opts Options) *Router {
	if opts.Cache == nil {
		opts.Cache = cache.NewMemoryStore(1024, 0)
	}
	if opts.Audit == nil {
		opts.Audit = audit.NewLogSink(nil)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Router{
		translator: opts.Translator,
		engines:    opts.Engines,
		comparator: opts.Comparator,
		cache:      opts.Cache,
		audit:      opts.Audit,
		logger:     opts.Logger,
	}
}

// Stats returns a snapshot of the call counters.
func (r *Router) Stats() Stats {
	return Stats{
		Calls:                r.calls.Load(),
		CacheHits:            r.cacheHits.Load(),
		VerificationFailures: r.failures.Load(),
	}
}

// Verify runs one query through the full pipeline. It always returns a
// Verdict; the Error field carries the failure taxonomy name when a stage
// could not complete.
func (r *Router) Verify(ctx context.Context, q types.Query) types.Verdict {
	r.calls.Add(1)
	requestID := uuid.NewString()
	start := time.Now()
	log := r.logger.With(zap.String("request_id", requestID))

	domain, err := classify.Classify(q)
	if err != nil {
		log.Warn("classification rejected query", zap.Error(err))
		v := types.Verdict{
			Evidence: types.Evidence{Method: "unverifiable", Domain: types.DomainUnknown},
			Error:    types.ErrorName(err),
		}
		r.finish(requestID, q, types.DomainUnknown, v, false, start)
		return v
	}
	log = log.With(zap.String("domain", string(domain)), zap.String("state", string(StateClassifying)))

	if domain == types.DomainUnknown {
		// No engine can judge this; say so rather than guess.
		v := types.Verdict{
			Evidence: types.Evidence{Method: "unverifiable", Domain: types.DomainUnknown},
		}
		r.finish(requestID, q, domain, v, false, start)
		return v
	}

	key := types.CacheKey(q.Text, domain, q.CandidateAnswer)
	if cached, ok, cerr := r.cache.Get(key); cerr != nil {
		if errors.Is(cerr, types.ErrCacheCorruption) {
			// A corrupt entry means stored verdicts can no longer be
			// trusted; that is fatal for this call, not a silent recompute.
			log.Error("cache corruption detected", zap.Error(cerr))
			v := types.Verdict{
				Evidence: types.Evidence{Method: "cache", Domain: domain},
				Error:    types.ErrorName(types.ErrCacheCorruption),
			}
			r.finish(requestID, q, domain, v, false, start)
			return v
		}
		log.Warn("cache read failed, recomputing", zap.Error(cerr))
	} else if ok {
		r.cacheHits.Add(1)
		log.Debug("cache hit")
		r.finish(requestID, q, domain, cached, true, start)
		return cached
	}

	// Concurrent misses on the same key share one pipeline run.
	shared, _, _ := r.group.Do(key, func() (any, error) {
		v := r.pipeline(ctx, log, q, domain)
		if v.Error == "" {
			// Failed verdicts are never cached: transient provider
			// trouble must not poison future calls.
			if perr := r.cache.Put(key, v); perr != nil {
				log.Warn("cache write failed", zap.Error(perr))
			}
		}
		return v, nil
	})
	v := shared.(types.Verdict)
	r.finish(requestID, q, domain, v, false, start)
	return v
}

// pipeline runs translation, evaluation and comparison for one domain.
func (r *Router) pipeline(ctx context.Context, log *zap.Logger, q types.Query, domain types.Domain) types.Verdict {
	eng, ok := r.engines.For(domain)
	if !ok {
		return types.Verdict{
			Evidence: types.Evidence{Method: "unverifiable", Domain: domain},
		}
	}

	ev := types.Evidence{Method: eng.Name(), Domain: domain}

	var expression string
	if domain == types.DomainConsensus {
		// The consensus engine polls providers with the raw question;
		// a translation step would only add a failure mode.
		expression = q.Text
	} else {
		res, err := r.translator.Translate(ctx, q, domain, eng.Validate)
		ev.Expression = res.Expression
		ev.Provider = res.Provider
		if err != nil {
			log.Warn("translation failed",
				zap.String("state", string(StateTranslating)),
				zap.Int("attempts", res.Attempts),
				zap.Error(err))
			return types.Verdict{Evidence: ev, Error: errorTag(err)}
		}
		expression = res.Expression
	}

	// Engines are deterministic, so a failure here is a property of the
	// expression and retrying would only repeat it.
	outcome := eng.Evaluate(ctx, expression)
	log.Debug("engine evaluated",
		zap.String("state", string(StateEvaluating)),
		zap.String("outcome", string(outcome.Kind)))

	ev.Expression = expression
	return r.comparator.Compare(q.CandidateAnswer, outcome, domain, ev)
}

func errorTag(err error) string {
	switch {
	case errors.Is(err, types.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return types.ErrorName(types.ErrTimeout)
	case errors.Is(err, types.ErrTranslationUnparseable):
		return types.ErrorName(types.ErrTranslationUnparseable)
	case errors.Is(err, types.ErrAllProvidersExhausted):
		return types.ErrorName(types.ErrAllProvidersExhausted)
	case errors.Is(err, provider.ErrProvider):
		return types.ErrorName(types.ErrAllProvidersExhausted)
	default:
		return types.ErrorName(types.ErrInvalidQuery)
	}
}

// finish updates counters and emits the audit event for one call.
func (r *Router) finish(requestID string, q types.Query, domain types.Domain, v types.Verdict, cacheHit bool, start time.Time) {
	if v.Error != "" {
		r.failures.Add(1)
	}
	r.audit.Record(audit.Event{
		RequestID: requestID,
		QueryHash: types.QueryHash(q, domain),
		Domain:    domain,
		Verified:  v.Verified,
		Error:     v.Error,
		Provider:  v.Evidence.Provider,
		CacheHit:  cacheHit,
		Latency:   time.Since(start),
		At:        start,
	})
}

// MarshalVerdict renders a verdict as indented JSON for CLI output.
func MarshalVerdict(v types.Verdict) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
