// Package pipeline runs a batch of ideas through search, retrieval,
// judgment and citation, and assembles the ordered batch result.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/swift/internal/judge"
	"github.com/TobiSchelling/swift/internal/locate"
	"github.com/TobiSchelling/swift/internal/model"
)

// Fetcher gathers web documents for a query.
type Fetcher interface {
	Fetch(ctx context.Context, query string) ([]model.FetchedDocument, model.SearchMeta, error)
}

// Retriever ranks document chunks against a query.
type Retriever interface {
	RetrieveEmbeddings(ctx context.Context, docs []model.FetchedDocument, links []string, query string) ([]model.RankedPassage, error)
}

// Judge produces the raw verdict text for a query.
type Judge interface {
	GetAnswer(ctx context.Context, query, formattedContext, lang string, cfg model.EvaluationConfig) (string, error)
}

// Grouper labels near-duplicate ideas in place.
type Grouper interface {
	Group(ctx context.Context, items []model.ItemResult) error
}

// Digester summarises the kept ideas of a run.
type Digester interface {
	Compose(ctx context.Context, kept []model.ItemResult) ([]string, error)
}

// Stages are the collaborators of a run. Judge is required; without a
// Fetcher or Retriever the run is ungrounded. Grouper and Digester are
// optional.
type Stages struct {
	Fetcher   Fetcher
	Retriever Retriever
	Judge     Judge
	Grouper   Grouper
	Digester  Digester
}

// Options tunes scheduling.
type Options struct {
	Concurrency int
	CallTimeout time.Duration
	Grounding   bool
}

// DefaultOptions returns the settings used when none are configured.
func DefaultOptions() Options {
	return Options{Concurrency: 4, CallTimeout: 45 * time.Second, Grounding: true}
}

// Pipeline orchestrates one triage run.
type Pipeline struct {
	stages Stages
	opts   Options
	now    func() time.Time
}

// New creates a new pipeline.
func New(stages Stages, opts Options) *Pipeline {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Pipeline{stages: stages, opts: opts, now: time.Now}
}

// Select picks the ideas a run processes: the first limit ideas with
// problem text, in input order. Rows without problem text are reported in
// skipped and never count toward limit. limit <= 0 selects nothing.
func Select(ideas []model.Idea, limit int) (selected []model.Idea, skipped []int) {
	for _, idea := range ideas {
		if !idea.HasProblem() {
			skipped = append(skipped, idea.Row)
			continue
		}
		if len(selected) < limit {
			selected = append(selected, idea)
		}
	}
	return selected, skipped
}

// Run judges up to limit ideas and returns one result per selected idea,
// in input order. Only an invalid cfg is returned as an error; per-item
// failures become degraded verdicts. Once ctx is done no further items are
// started and the remaining ones are recorded as cancelled.
func (p *Pipeline) Run(ctx context.Context, ideas []model.Idea, cfg model.EvaluationConfig, limit int) (*model.BatchResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if p.stages.Judge == nil {
		return nil, model.NewError(model.KindValidation, nil, "pipeline: no judge configured")
	}

	selected, skipped := Select(ideas, limit)
	result := &model.BatchResult{
		RunID:     uuid.NewString(),
		StartedAt: p.now(),
		Skipped:   skipped,
		Items:     make([]model.ItemResult, len(selected)),
	}

	zap.L().Info("starting run",
		zap.String("run_id", result.RunID),
		zap.Int("ideas", len(ideas)),
		zap.Int("selected", len(selected)),
		zap.Int("skipped", len(skipped)),
		zap.Int("concurrency", p.opts.Concurrency),
		zap.Bool("grounding", p.grounded()),
	)

	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for i, idea := range selected {
		if ctx.Err() != nil {
			cancelRemaining(result.Items[i:], selected[i:], ctx.Err())
			break
		}
		g.Go(func() error {
			// ctx may have ended while this item waited for a slot
			if err := ctx.Err(); err != nil {
				cancelRemaining(result.Items[i:i+1], selected[i:i+1], err)
				return nil
			}
			result.Items[i] = p.processItem(ctx, idea, cfg)
			return nil
		})
	}
	_ = g.Wait()

	if p.stages.Grouper != nil && len(result.Items) > 1 {
		if err := p.stages.Grouper.Group(ctx, result.Items); err != nil {
			zap.L().Warn("duplicate grouping failed", zap.Error(err))
		}
	}
	if p.stages.Digester != nil {
		if kept := result.Kept(); len(kept) > 0 {
			digest, err := p.stages.Digester.Compose(ctx, kept)
			if err != nil {
				zap.L().Warn("digest failed", zap.Error(err))
			}
			result.Digest = digest
		}
	}

	result.FinishedAt = p.now()
	kept, filtered, degraded := result.Counts()
	zap.L().Info("run complete",
		zap.String("run_id", result.RunID),
		zap.Int("kept", kept),
		zap.Int("filtered", filtered),
		zap.Int("degraded", degraded),
		zap.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)),
	)
	return result, nil
}

func cancelRemaining(slots []model.ItemResult, ideas []model.Idea, cause error) {
	err := eris.Wrap(cause, "cancelled")
	for i := range slots {
		slots[i] = model.ItemResult{Idea: ideas[i], Verdict: model.DegradedVerdict(err)}
	}
}

func (p *Pipeline) grounded() bool {
	return p.opts.Grounding && p.stages.Fetcher != nil
}

// callContext bounds a single network call.
func (p *Pipeline) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.opts.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.opts.CallTimeout)
}

// processItem runs fetch, retrieve, judge and locate for one idea. Fetch
// and retrieval failures leave the judgment ungrounded; a judgment failure
// yields a degraded verdict.
func (p *Pipeline) processItem(ctx context.Context, idea model.Idea, cfg model.EvaluationConfig) model.ItemResult {
	log := zap.L().With(zap.Int("row", idea.Row), zap.String("id", idea.ID))
	query := idea.Query()
	res := model.ItemResult{Idea: idea}

	var (
		issues   []string
		meta     model.SearchMeta
		passages []model.RankedPassage
	)

	if p.grounded() {
		callCtx, cancel := p.callContext(ctx)
		docs, m, err := p.stages.Fetcher.Fetch(callCtx, query)
		cancel()
		meta = m
		if err != nil {
			err = classify(err, model.KindFetch)
			log.Warn("fetch failed, judging without web context", zap.Error(err))
			issues = append(issues, err.Error())
		}

		if len(docs) > 0 && p.stages.Retriever != nil {
			callCtx, cancel := p.callContext(ctx)
			passages, err = p.stages.Retriever.RetrieveEmbeddings(callCtx, docs, meta.Links, query)
			cancel()
			if err != nil {
				err = classify(err, model.KindRetrieval)
				log.Warn("retrieval failed, judging without web context", zap.Error(err))
				issues = append(issues, err.Error())
				passages = nil
			}
		}
	}
	res.Sources = meta.Links

	lang := cfg.Language
	if lang == "" {
		lang = meta.Language
	}
	reference := judge.FormatReference(passages, meta.Links)

	callCtx, cancel := p.callContext(ctx)
	text, err := p.stages.Judge.GetAnswer(callCtx, query, reference, lang, cfg)
	cancel()
	if err != nil {
		err = classify(err, model.KindInference)
		log.Warn("judgment failed, keeping idea", zap.Error(err))
		v := model.DegradedVerdict(err)
		v.Issues = append(issues, err.Error())
		res.Verdict = v
		return res
	}

	v := judge.ParseVerdict(text)
	v.Citations = locate.LocateSource(text, meta, passages)
	if len(issues) > 0 {
		v.Issues = append(issues, v.Issues...)
	}
	res.Verdict = v

	log.Debug("idea judged",
		zap.String("decision", string(v.Decision)),
		zap.Int("passages", len(passages)),
		zap.Int("citations", len(v.Citations)),
	)
	return res
}

// classify tags err with kind unless it already carries one.
func classify(err error, kind model.Kind) error {
	for _, k := range []model.Kind{model.KindFetch, model.KindRetrieval, model.KindInference, model.KindParse, model.KindValidation} {
		if model.IsKind(err, k) {
			return err
		}
	}
	return model.NewError(kind, err, string(kind)+" failed")
}
