package warc

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/rotisserie/eris"
)

// DefaultBaseURL serves Common Crawl data over HTTPS.
const DefaultBaseURL = "https://data.commoncrawl.org/"

var fileNumberRe = regexp.MustCompile(`-(\d{5})\.warc\.gz$`)

// FileID identifies one archive within a crawl, e.g.
// crawl-data/CC-MAIN-2025-30/segments/1751905933612.63/warc/CC-MAIN-...-00000.warc.gz
type FileID struct {
	Path    string
	Crawl   string
	Segment string
	Number  int
}

// ParseFileID splits a crawl-relative archive path into its parts.
func ParseFileID(path string) (FileID, error) {
	path = strings.TrimLeft(strings.TrimSpace(path), "/")
	parts := strings.Split(path, "/")
	if len(parts) < 5 {
		return FileID{}, eris.Errorf("warc: file id %q has too few path segments", path)
	}
	m := fileNumberRe.FindStringSubmatch(path)
	if m == nil {
		return FileID{}, eris.Errorf("warc: file id %q has no file number", path)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return FileID{}, eris.Wrapf(err, "warc: file id %q", path)
	}
	return FileID{
		Path:    path,
		Crawl:   parts[1],
		Segment: parts[3],
		Number:  n,
	}, nil
}

// BaseName returns the archive file name without directories.
func (f FileID) BaseName() string {
	if i := strings.LastIndexByte(f.Path, '/'); i >= 0 {
		return f.Path[i+1:]
	}
	return f.Path
}

// RemoteURL joins a crawl-relative path onto a download base URL.
func RemoteURL(base, path string) string {
	if base == "" {
		base = DefaultBaseURL
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// ReadPathList reads a warc.paths listing, plain or gzip-compressed, and
// returns its non-blank lines.
func ReadPathList(r io.Reader) ([]string, error) {
	br := bufio.NewReader(r)
	var src io.Reader = br
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, eris.Wrap(err, "warc: open path list")
		}
		defer gz.Close() //nolint:errcheck
		src = gz
	}

	var paths []string
	sc := bufio.NewScanner(src)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		paths = append(paths, line)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "warc: read path list")
	}
	return paths, nil
}
