package warc

import "fmt"

// ArchiveFormatError reports a stream that is not a valid WARC container.
// It is terminal: after a framing error the position of the next record is
// unknown, so the reader does not attempt to resynchronise.
type ArchiveFormatError struct {
	Record int // 1-based ordinal of the record being read
	Reason string
	Err    error
}

func (e *ArchiveFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("warc: record %d: %s: %v", e.Record, e.Reason, e.Err)
	}
	return fmt.Sprintf("warc: record %d: %s", e.Record, e.Reason)
}

func (e *ArchiveFormatError) Unwrap() error {
	return e.Err
}
