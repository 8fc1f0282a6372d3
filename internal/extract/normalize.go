package extract

import (
	"go.uber.org/zap"

	"github.com/sells-group/postalcrawl/internal/clean"
	"github.com/sells-group/postalcrawl/internal/model"
	"github.com/sells-group/postalcrawl/internal/stats"
)

// Normalizer cleans candidates and drops those without enough content to
// geocode.
type Normalizer struct {
	stats *stats.Counter
}

// NewNormalizer creates a Normalizer reporting to counter.
func NewNormalizer(counter *stats.Counter) *Normalizer {
	return &Normalizer{stats: counter}
}

// Process implements Stage. A field with an unexpected JSON type is logged
// and counted, and the candidate is dropped.
func (n *Normalizer) Process(c model.AddressCandidate, emit func(model.Address) bool) bool {
	addr, err := clean.Candidate(c)
	if err != nil {
		n.stats.Inc("error/clean/unsupported_type")
		zap.L().Warn("extract: clean candidate",
			zap.String("url", c.Provenance.URL),
			zap.String("record_id", c.Provenance.RecordID),
			zap.Error(err),
		)
		return true
	}
	if ok, reason := clean.Accept(addr); !ok {
		n.stats.Inc(reason)
		return true
	}
	n.stats.Inc("address/accepted")
	return emit(addr)
}
