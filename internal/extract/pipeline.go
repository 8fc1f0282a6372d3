package extract

import (
	"context"
	"errors"
	"io"
	"iter"

	"github.com/sells-group/postalcrawl/internal/model"
	"github.com/sells-group/postalcrawl/internal/stats"
	"github.com/sells-group/postalcrawl/internal/warc"
)

// Config tunes the extraction pipeline. Zero values use defaults.
type Config struct {
	MaxBodySize  int64
	SniffCharset bool
	ParseDepth   int
	WalkDepth    int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithConfig applies cfg.
func WithConfig(cfg Config) Option {
	return func(p *Pipeline) { p.cfg = cfg }
}

// WithScriptParser replaces the goquery-based ld+json script parser.
func WithScriptParser(parse ScriptParser) Option {
	return func(p *Pipeline) { p.parse = parse }
}

// Pipeline chains Filter, Decoder, Extractor, Miner and Normalizer.
type Pipeline struct {
	cfg   Config
	parse ScriptParser
	stats *stats.Counter
	stage Stage[*warc.Record, model.Address]
}

// New builds a pipeline whose stages report to counter.
func New(counter *stats.Counter, opts ...Option) *Pipeline {
	p := &Pipeline{stats: counter}
	for _, opt := range opts {
		opt(p)
	}

	var records Stage[*warc.Record, *warc.Record] = NewFilter(counter)
	docs := Chain(records, Stage[*warc.Record, model.DecodedDocument](
		NewDecoder(counter, p.cfg.MaxBodySize, p.cfg.SniffCharset)))
	blocks := Chain(docs, Stage[model.DecodedDocument, model.LinkedDataBlock](
		NewExtractor(counter, p.parse)))
	candidates := Chain(blocks, Stage[model.LinkedDataBlock, model.AddressCandidate](
		NewMiner(counter, p.cfg.ParseDepth, p.cfg.WalkDepth)))
	p.stage = Chain(candidates, Stage[model.AddressCandidate, model.Address](
		NewNormalizer(counter)))
	return p
}

// Stats returns the counter the pipeline reports to.
func (p *Pipeline) Stats() *stats.Counter {
	return p.stats
}

// Process runs a single record through every stage.
func (p *Pipeline) Process(rec *warc.Record, emit func(model.Address) bool) bool {
	return p.stage.Process(rec, emit)
}

// Candidates lazily yields the cleaned candidates of every record in r. A
// terminal archive error is yielded once as the last element.
func (p *Pipeline) Candidates(r *warc.Reader) iter.Seq2[model.Address, error] {
	return func(yield func(model.Address, error) bool) {
		for {
			rec, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(model.Address{}, err)
				return
			}
			if !p.stage.Process(rec, func(a model.Address) bool { return yield(a, nil) }) {
				return
			}
		}
	}
}

// Run drives the pipeline over r, calling fn for each candidate, until the
// archive ends, fn fails, or ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context, r *warc.Reader, fn func(model.Address) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		var fnErr error
		p.stage.Process(rec, func(a model.Address) bool {
			fnErr = fn(a)
			return fnErr == nil
		})
		if fnErr != nil {
			return fnErr
		}
	}
}
