package extract

import (
	"errors"

	"go.uber.org/zap"

	"github.com/sells-group/postalcrawl/internal/jsonld"
	"github.com/sells-group/postalcrawl/internal/model"
	"github.com/sells-group/postalcrawl/internal/stats"
)

// Miner finds schema.org PostalAddress objects in linked data blocks.
type Miner struct {
	stats      *stats.Counter
	parseDepth int
	walkDepth  int
}

// NewMiner creates a Miner. Non-positive depths use the jsonld defaults.
func NewMiner(counter *stats.Counter, parseDepth, walkDepth int) *Miner {
	if parseDepth <= 0 {
		parseDepth = jsonld.DefaultMaxParseDepth
	}
	if walkDepth <= 0 {
		walkDepth = jsonld.DefaultMaxWalkDepth
	}
	return &Miner{stats: counter, parseDepth: parseDepth, walkDepth: walkDepth}
}

// Process implements Stage. Every object whose "address" member is an
// object typed "PostalAddress" yields one candidate; the candidate's name
// comes from the outer object.
func (m *Miner) Process(block model.LinkedDataBlock, emit func(model.AddressCandidate) bool) bool {
	root, err := jsonld.ParseDepth([]byte(block.Text), m.parseDepth)
	if err != nil {
		if errors.Is(err, jsonld.ErrTooDeep) {
			m.stats.Inc("error/json/too_deep")
		} else {
			m.stats.Inc("error/json/decode_error")
		}
		zap.L().Debug("extract: decode ld+json",
			zap.String("url", block.Provenance.URL),
			zap.Error(err),
		)
		return true
	}

	cont := true
	truncated := jsonld.Objects(root, m.walkDepth, func(obj *jsonld.Map) bool {
		addr, ok := obj.Get("address").Object()
		if !ok {
			return true
		}
		if typ, _ := addr.Get("@type").Str(); typ != "PostalAddress" {
			return true
		}
		m.stats.Inc("postal_address/extracted")

		name := obj.Get("name")
		if !name.Truthy() {
			if legal := obj.Get("legalName"); legal.Truthy() {
				name = legal
			}
		}
		cont = emit(model.AddressCandidate{
			Name:       name,
			Street:     addr.Get("streetAddress"),
			Locality:   addr.Get("addressLocality"),
			Region:     addr.Get("addressRegion"),
			PostalCode: addr.Get("postalCode"),
			Country:    addr.Get("addressCountry"),
			Provenance: block.Provenance,
		})
		return cont
	})
	if truncated {
		m.stats.Inc("error/json/walk_truncated")
	}
	return cont
}
