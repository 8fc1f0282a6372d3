package extract

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/postalcrawl/internal/warc"
	"github.com/sells-group/postalcrawl/internal/warc/warctest"
)

func newReader(t *testing.T, records ...warctest.Record) *warc.Reader {
	t.Helper()
	r, err := warc.NewReader(bytes.NewReader(warctest.Build(records...)), nil)
	require.NoError(t, err)
	return r
}

func firstRecord(t *testing.T, rec warctest.Record) *warc.Record {
	t.Helper()
	out, err := newReader(t, rec).Next()
	require.NoError(t, err)
	return out
}
