package chat

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Response paths reported to the Recorder.
const (
	PathGreeting   = "greeting"
	PathCompletion = "completion"
	PathFallback   = "fallback"
)

// Recorder receives pipeline measurements. *metrics.Metrics implements it.
type Recorder interface {
	ObserveChatResponse(path string)
	ObserveCompletion(status string, elapsed time.Duration)
	ObserveFallback(kind string)
	AddResourcesMatched(n int)
}

// Pipeline turns one user message into an Outcome. It holds no per-request
// state and may be shared between goroutines.
type Pipeline struct {
	completer Completer
	matcher   *ResourceMatcher
	random    RandomSource
	now       func() time.Time
	log       zerolog.Logger
	recorder  Recorder
}

type Option func(*Pipeline)

func WithRandom(rnd RandomSource) Option {
	return func(p *Pipeline) {
		if rnd != nil {
			p.random = rnd
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

func WithMetrics(recorder Recorder) Option {
	return func(p *Pipeline) { p.recorder = recorder }
}

func NewPipeline(completer Completer, matcher *ResourceMatcher, opts ...Option) *Pipeline {
	p := &Pipeline{
		completer: completer,
		matcher:   matcher,
		random:    DefaultRandom(),
		now:       time.Now,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GenerateResponse answers message given the prior history and the user's
// medical context (nil when there is no profile). It never returns an error:
// failures are folded into a fallback Outcome.
func (p *Pipeline) GenerateResponse(ctx context.Context, message string, history []StoredMessage, medical *MedicalContext) Outcome {
	if IsGreeting(message) {
		p.observePath(PathGreeting)
		return GreetingResponse(medical, p.random, p.now())
	}

	resources, err := p.matcher.FindRelevant(ctx, message)
	if err != nil {
		p.log.Warn().Err(err).Msg("resource lookup failed; continuing without resources")
		resources = []Resource{}
	}
	if p.recorder != nil {
		p.recorder.AddResourcesMatched(len(resources))
	}

	systemPrompt := BuildSystemPrompt(medical, resources)
	turns := NormalizeHistory(history, message)

	if p.completer == nil {
		return p.fail(errNoCompleter)
	}

	started := time.Now()
	result, err := p.completer.Complete(ctx, systemPrompt, turns)
	elapsed := time.Since(started)
	if err != nil {
		if p.recorder != nil {
			p.recorder.ObserveCompletion("error", elapsed)
		}
		return p.fail(err)
	}
	if p.recorder != nil {
		p.recorder.ObserveCompletion("ok", elapsed)
	}

	sources := resourceSources(resources)
	sources = append(sources, citationSources(result.Citations)...)
	p.observePath(PathCompletion)
	return Outcome{
		MessageText: strings.TrimSpace(result.Text),
		Sources:     sources,
		Diagnostics: map[string]any{
			DiagTokenUsage:       result.Usage,
			DiagModel:            result.Model,
			DiagResourcesMatched: len(resources),
			DiagCitations:        len(result.Citations),
		},
	}
}

func (p *Pipeline) fail(err error) Outcome {
	outcome := Classify(err)
	p.log.Error().
		Err(err).
		Str("error_kind", outcome.ErrorKind()).
		Msg("completion failed; returning fallback reply")
	p.observePath(PathFallback)
	if p.recorder != nil {
		p.recorder.ObserveFallback(outcome.ErrorKind())
	}
	return outcome
}

func (p *Pipeline) observePath(path string) {
	if p.recorder != nil {
		p.recorder.ObserveChatResponse(path)
	}
}
