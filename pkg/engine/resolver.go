// Package engine orchestrates the resolution pipeline: admission,
// parallel entity extraction and embedding, similarity matching,
// compound detection, the fast/reasoning branch, and finalization.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/commercekit/intent-engine/pkg/apperrors"
	"github.com/commercekit/intent-engine/pkg/extraction"
	"github.com/commercekit/intent-engine/pkg/matching"
	"github.com/commercekit/intent-engine/pkg/models"
	"github.com/commercekit/intent-engine/pkg/ratelimit"
	"github.com/commercekit/intent-engine/pkg/reasoning"
	"github.com/commercekit/intent-engine/pkg/tenancy"
)

// DefaultReasoningTokenCost is the total rate-limit cost of a
// reasoning-path resolve. Admission consumes one token; the reasoning
// branch consumes the remainder. Operators may lower this to 1.
const DefaultReasoningTokenCost = 3

// Options tune the resolver.
type Options struct {
	// ReasoningTokenCost is the total token cost of a reasoning-path
	// call (default 3, minimum 1).
	ReasoningTokenCost int
	// Tools are relayed to the decomposer; nil disables tool use.
	Tools *reasoning.ToolCallbacks
}

// Resolver runs the pipeline. All collaborators are required except the
// tool callbacks.
type Resolver struct {
	tenants    tenancy.Store
	limiter    *ratelimit.Limiter
	extractor  *extraction.Extractor
	matcher    *matching.Matcher
	compound   *matching.CompoundDetector
	decomposer reasoning.Decomposer
	opts       Options
}

// NewResolver creates a resolver.
func NewResolver(
	tenants tenancy.Store,
	limiter *ratelimit.Limiter,
	extractor *extraction.Extractor,
	matcher *matching.Matcher,
	compound *matching.CompoundDetector,
	decomposer reasoning.Decomposer,
	opts Options,
) *Resolver {
	if opts.ReasoningTokenCost < 1 {
		opts.ReasoningTokenCost = DefaultReasoningTokenCost
	}
	return &Resolver{
		tenants:    tenants,
		limiter:    limiter,
		extractor:  extractor,
		matcher:    matcher,
		compound:   compound,
		decomposer: decomposer,
		opts:       opts,
	}
}

// Resolve classifies one message. The context deadline, if any, is
// honored between stages; network stages are interruptible through ctx.
func (r *Resolver) Resolve(ctx context.Context, input models.ResolveInput) (models.ResolveOutput, error) {
	start := time.Now()

	if err := validateInput(&input); err != nil {
		return models.ResolveOutput{}, err
	}

	out := models.ResolveOutput{
		RequestID:       input.RequestID,
		ResolvedIntents: []models.ResolvedIntent{},
		Entities:        []models.Entity{},
		ReasoningTrace:  []string{},
	}
	trace := func(format string, args ...any) {
		out.ReasoningTrace = append(out.ReasoningTrace, fmt.Sprintf(format, args...))
	}

	// Stage 1: admission.
	tenant, err := r.admit(ctx, input.TenantID)
	if err != nil {
		return models.ResolveOutput{}, err
	}
	trace("admission: tenant %s (%s) admitted", tenant.TenantID, tenant.Tier)

	if err := checkDeadline(ctx); err != nil {
		return out, err
	}

	// Stage 2: entity extraction and embedding run concurrently.
	// Extraction failure is non-fatal; embedding failure aborts.
	var extracted models.ExtractionResult
	var vec []float32

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		extracted = r.extractor.Extract(input.RawText)
		return nil
	})
	g.Go(func() error {
		var embedErr error
		vec, embedErr = r.matcher.Embed(gctx, input.RawText)
		return embedErr
	})
	if err := g.Wait(); err != nil {
		return out, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "embedding input", err)
	}
	out.Entities = extracted.Entities
	sentiment := extracted
	sentiment.Entities = nil
	out.Sentiment = &sentiment
	trace("extract: %d entities, urgency %.2f, frustration %.2f",
		len(extracted.Entities), extracted.UrgencyScore, extracted.FrustrationScore)

	if err := checkDeadline(ctx); err != nil {
		return out, err
	}

	// Stage 3: similarity match.
	outcome, err := r.matcher.MatchVector(ctx, vec)
	if err != nil {
		return out, err
	}
	if len(outcome.Results) > 0 {
		trace("match: top1 %s (%.3f), decision %s",
			outcome.Results[0].IntentCode, outcome.Top1, outcome.Decision)
	} else {
		trace("match: no catalog candidates")
	}

	// Stage 4: compound detection.
	compound := r.compound.Detect(input.RawText, outcome.Hits, extracted)
	trace("compound: %v [%s]", compound.IsCompound, strings.Join(compound.Signals, ", "))

	if err := checkDeadline(ctx); err != nil {
		return out, err
	}

	// Stage 5: branch decision.
	useFast := r.fastPathEligible(tenant, outcome, compound)
	if useFast {
		trace("branch: fast_path (top1 %.3f, gap %.3f)", outcome.Top1, outcome.Gap())
		r.resolveFast(&out, outcome)
	} else {
		trace("branch: reasoning_path")
		if err := r.resolveReasoning(ctx, tenant, input, extracted, outcome, &out, trace); err != nil {
			return out, err
		}
	}

	// Stage 8: finalization.
	out.SummarizeConfidence()
	if out.ClarificationQuestion != "" && len(out.ResolvedIntents) > 0 {
		// The clarification question goes back to the customer instead
		// of a human agent.
		out.RequiresHuman = false
		out.HumanHandoffReason = ""
	}
	out.Stamp(start)
	trace("finalize: confidence %.3f, requires_human %v", out.ConfidenceSummary, out.RequiresHuman)

	return out, nil
}

func validateInput(input *models.ResolveInput) error {
	if strings.TrimSpace(input.RawText) == "" {
		return apperrors.New(apperrors.KindValidation, "raw_text must not be empty")
	}
	if len(input.RawText) > models.MaxRawTextBytes {
		return apperrors.Newf(apperrors.KindValidation,
			"raw_text exceeds %d bytes", models.MaxRawTextBytes)
	}
	if !utf8.ValidString(input.RawText) {
		return apperrors.New(apperrors.KindValidation, "raw_text must be valid UTF-8")
	}
	if input.TenantID == "" {
		return apperrors.New(apperrors.KindValidation, "tenant_id is required")
	}
	if input.RequestID == "" {
		input.RequestID = uuid.New().String()
	}
	return nil
}

// admit looks up the tenant and consumes one rate-limit token. An
// unknown tenant fails the same way as a deactivated one.
func (r *Resolver) admit(ctx context.Context, tenantID string) (tenancy.Config, error) {
	tenant, err := r.tenants.ByID(ctx, tenantID)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			return tenancy.Config{}, apperrors.Newf(apperrors.KindAuthInactive,
				"tenant %s is unknown or inactive", tenantID)
		}
		return tenancy.Config{}, err
	}
	if _, err := r.limiter.Allow(ctx, tenant.TenantID, tenant.RateLimit(), tenant.BurstSize(), 1); err != nil {
		return tenancy.Config{}, err
	}
	return tenant, nil
}

// fastPathEligible applies the branch rule: HIGH top-1 with a clear gap,
// no compound signal, and the tenant flag on. A second category above
// the high threshold disqualifies the fast path even when the pooled gap
// looks clear.
func (r *Resolver) fastPathEligible(tenant tenancy.Config, outcome matching.Outcome, compound matching.CompoundResult) bool {
	if !tenant.FastPathEnabled() || compound.IsCompound || len(outcome.Results) == 0 {
		return false
	}
	if outcome.Top1 < matching.HighThreshold {
		return false
	}
	if len(outcome.Results) > 1 && outcome.Gap() < matching.MinGap {
		return false
	}
	topCategory, _, _ := strings.Cut(outcome.Results[0].IntentCode, ".")
	for _, res := range outcome.Results[1:] {
		category, _, _ := strings.Cut(res.IntentCode, ".")
		if category != topCategory && res.Similarity >= matching.HighThreshold {
			return false
		}
	}
	return true
}

// resolveFast emits the single top-1 intent.
func (r *Resolver) resolveFast(out *models.ResolveOutput, outcome matching.Outcome) {
	top := outcome.Results[0]
	intent, err := models.NewResolvedIntent(top.IntentCode, top.Similarity, []string{top.MatchedExample})
	if err != nil {
		// Catalog rows are validated at load; an unparsable code here
		// means a corrupted catalog. Degrade to human handoff.
		slog.Error("Fast path hit unparsable intent code", "intent_code", top.IntentCode, "error", err)
		out.RequiresHuman = true
		out.HumanHandoffReason = "catalog returned malformed intent code"
		return
	}
	out.ResolvedIntents = []models.ResolvedIntent{intent}
	out.IsCompound = false
	out.PathTaken = models.PathFast
}

// resolveReasoning invokes the decomposer, degrading to the matcher's
// best candidate when the tenant lacks the feature or the model fails.
func (r *Resolver) resolveReasoning(
	ctx context.Context,
	tenant tenancy.Config,
	input models.ResolveInput,
	extracted models.ExtractionResult,
	outcome matching.Outcome,
	out *models.ResolveOutput,
	trace func(string, ...any),
) error {
	out.PathTaken = models.PathReasoning
	out.IsCompound = false

	if !tenant.ReasoningPathEnabled() {
		trace("reasoning path disabled for tenant; falling back to matcher top-1")
		r.fallbackToMatcher(out, outcome, "reasoning path disabled")
		return nil
	}

	// The reasoning path costs extra tokens beyond the one consumed at
	// admission.
	if extra := r.opts.ReasoningTokenCost - 1; extra > 0 {
		if _, err := r.limiter.Allow(ctx, tenant.TenantID, tenant.RateLimit(), tenant.BurstSize(), extra); err != nil {
			return err
		}
	}

	decInput := reasoning.Input{
		RawText:         input.RawText,
		Entities:        extracted.Entities,
		MatchHints:      outcome.Results,
		CustomerTier:    input.CustomerTier,
		PreviousIntents: input.PreviousIntents,
		Tools:           r.opts.Tools,
	}
	trace("reasoning: LLM decomposition with %d match hints", len(outcome.Results))

	decOut, err := r.decomposer.Decompose(ctx, decInput)
	if err != nil {
		trace("reasoning: decomposer failed (%v); falling back to matcher top-1", err)
		slog.Warn("Decomposer failed, degrading to matcher candidates",
			"request_id", input.RequestID, "error", err)
		r.fallbackToMatcher(out, outcome, "llm decomposition failed")
		return nil
	}

	if decOut.Reasoning != "" {
		trace("reasoning: %s", decOut.Reasoning)
	}

	intents := make([]models.ResolvedIntent, 0, len(decOut.Intents))
	var constraints []models.Constraint
	for _, di := range decOut.Intents {
		intent, err := models.NewResolvedIntent(di.IntentCode, di.Confidence, di.Evidence)
		if err != nil {
			trace("reasoning: skipping malformed intent code %q", di.IntentCode)
			continue
		}
		intents = append(intents, intent)
		for _, c := range di.Constraints {
			constraints = append(constraints, models.ClassifyConstraint(c))
		}
	}

	out.ResolvedIntents = intents
	out.Constraints = constraints
	out.IsCompound = decOut.IsCompound || len(intents) > 1
	if len(intents) > 0 {
		codes := make([]string, len(intents))
		for i, ri := range intents {
			codes[i] = ri.IntentCode()
		}
		trace("reasoning: resolved %s", strings.Join(codes, ", "))
	}
	if decOut.RequiresClarification {
		out.ClarificationQuestion = decOut.ClarificationQuestion
		trace("low-confidence, clarification recommended")
	}
	return nil
}

// fallbackToMatcher emits the matcher's top candidate at LOW tier and
// routes the request to a human.
func (r *Resolver) fallbackToMatcher(out *models.ResolveOutput, outcome matching.Outcome, reason string) {
	out.RequiresHuman = true
	out.HumanHandoffReason = reason
	if len(outcome.Results) == 0 {
		return
	}
	top := outcome.Results[0]
	// Cap the degraded confidence below the medium threshold so the
	// tier function still holds for the LOW-tier fallback intent.
	confidence := top.Similarity
	if confidence >= 0.60 {
		confidence = 0.59
	}
	intent, err := models.NewResolvedIntent(top.IntentCode, confidence, []string{top.MatchedExample})
	if err != nil {
		return
	}
	out.ResolvedIntents = []models.ResolvedIntent{intent}
}

func checkDeadline(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return apperrors.Wrap(apperrors.KindUpstreamTimeout, "resolve deadline exceeded", ctx.Err())
	default:
		return nil
	}
}
