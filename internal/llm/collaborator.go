package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// DefaultCallInterval is the minimum spacing between collaborator calls
// in a batch, respecting external throughput limits.
const DefaultCallInterval = 500 * time.Millisecond

// DefaultCallTimeout bounds a single collaborator call.
const DefaultCallTimeout = 20 * time.Second

// Collaborator implements Understander, Compressor, Reasoner, and
// ImportanceRater over any TextGenerator. Calls are paced by a shared
// rate limiter and bounded by a per-call timeout; parse failures and
// provider errors surface to the caller, which is expected to degrade to
// a local heuristic or skip (no engine invariant depends on these calls
// succeeding).
type Collaborator struct {
	gen     TextGenerator
	limiter *rate.Limiter
	timeout time.Duration
}

// CollaboratorOption customises a Collaborator.
type CollaboratorOption func(*Collaborator)

// WithCallInterval overrides the minimum spacing between calls.
func WithCallInterval(interval time.Duration) CollaboratorOption {
	return func(c *Collaborator) {
		if interval > 0 {
			c.limiter = rate.NewLimiter(rate.Every(interval), 1)
		}
	}
}

// WithCallTimeout overrides the per-call timeout.
func WithCallTimeout(timeout time.Duration) CollaboratorOption {
	return func(c *Collaborator) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// NewCollaborator wraps a text generator in the collaborator protocol.
func NewCollaborator(gen TextGenerator, opts ...CollaboratorOption) *Collaborator {
	c := &Collaborator{
		gen:     gen,
		limiter: rate.NewLimiter(rate.Every(DefaultCallInterval), 1),
		timeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// complete paces, bounds, and executes one completion.
func (c *Collaborator) complete(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.gen.Complete(callCtx, prompt)
}

// Understand extracts entities, relationships, and changes from text.
func (c *Collaborator) Understand(ctx context.Context, req UnderstandRequest) (*UnderstandResult, error) {
	raw, err := c.complete(ctx, buildUnderstandPrompt(req))
	if err != nil {
		return nil, err
	}
	return parseUnderstandResponse(raw)
}

// Compress produces a tight entity summary.
func (c *Collaborator) Compress(ctx context.Context, req CompressRequest) (string, error) {
	raw, err := c.complete(ctx, buildCompressPrompt(req))
	if err != nil {
		return "", err
	}
	return parseCompressResponse(raw)
}

// Reason proposes cross-entity inferences.
func (c *Collaborator) Reason(ctx context.Context, req ReasonRequest) ([]ProposedInference, error) {
	raw, err := c.complete(ctx, buildReasonPrompt(req))
	if err != nil {
		return nil, err
	}
	return parseReasonResponse(raw)
}

// RateImportance classifies an entity's importance.
func (c *Collaborator) RateImportance(ctx context.Context, req RateRequest) (*RateResult, error) {
	raw, err := c.complete(ctx, buildRatePrompt(req))
	if err != nil {
		return nil, err
	}
	return parseRateResponse(raw)
}

// GetModel reports the underlying provider model.
func (c *Collaborator) GetModel() string {
	return c.gen.GetModel()
}
