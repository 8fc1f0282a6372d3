package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sells-group/postalcrawl/internal/model"
	"github.com/sells-group/postalcrawl/internal/stats"
)

// Marker is the lower-case substring every document and block must contain
// before it is worth parsing.
const Marker = "postaladdress"

// ScriptParser returns the raw text of every <script type="application/ld+json">
// element in an HTML or XML document, in document order.
type ScriptParser func(content string) ([]string, error)

// Extractor pulls linked data blocks out of decoded documents.
type Extractor struct {
	stats *stats.Counter
	parse ScriptParser
}

// NewExtractor creates an Extractor. A nil parse uses goquery.
func NewExtractor(counter *stats.Counter, parse ScriptParser) *Extractor {
	if parse == nil {
		parse = LDJSONScripts
	}
	return &Extractor{stats: counter, parse: parse}
}

// Process implements Stage.
func (e *Extractor) Process(doc model.DecodedDocument, emit func(model.LinkedDataBlock) bool) bool {
	if !ContainsMarker(doc.Content) {
		e.stats.Inc("document/no_candidate_marker")
		return true
	}

	scripts, err := e.parse(doc.Content)
	if err != nil {
		e.stats.Inc("error/html/parse")
		zap.L().Debug("extract: parse markup",
			zap.String("url", doc.Provenance.URL),
			zap.Error(err),
		)
		return true
	}

	for _, text := range scripts {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if !ContainsMarker(text) {
			e.stats.Inc("block/no_candidate_marker")
			continue
		}
		e.stats.Inc("block/ld_json")
		if !emit(model.LinkedDataBlock{Text: text, Provenance: doc.Provenance}) {
			return false
		}
	}
	return true
}

// LDJSONScripts is the default ScriptParser.
func LDJSONScripts(content string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, err
	}
	var out []string
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		typ, _ := s.Attr("type")
		if strings.EqualFold(strings.TrimSpace(typ), "application/ld+json") {
			out = append(out, s.Text())
		}
	})
	return out, nil
}

// ContainsMarker reports whether s contains Marker, ignoring ASCII case,
// without allocating a lower-cased copy.
func ContainsMarker(s string) bool {
	n := len(Marker)
	for i := 0; i+n <= len(s); i++ {
		j := strings.IndexAny(s[i:], "pP")
		if j < 0 {
			return false
		}
		i += j
		if i+n <= len(s) && asciiEqualFold(s[i:i+n], Marker) {
			return true
		}
	}
	return false
}

func asciiEqualFold(s, lower string) bool {
	for i := 0; i < len(lower); i++ {
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c != lower[i] {
			return false
		}
	}
	return true
}
