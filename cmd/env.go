package main

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/postalcrawl/internal/fetcher"
	"github.com/sells-group/postalcrawl/internal/pipeline"
	"github.com/sells-group/postalcrawl/internal/stats"
	"github.com/sells-group/postalcrawl/internal/store"
	"github.com/sells-group/postalcrawl/internal/warc"
	"github.com/sells-group/postalcrawl/pkg/geocode"
)

// appEnv holds the clients shared by the extract, validate and run commands.
type appEnv struct {
	Store    store.Store // nil when store.driver is "none"
	Stats    *stats.Counter
	Fetcher  *fetcher.HTTPFetcher
	Resolver *geocode.Client // nil unless validation was requested
	stop     func()
}

// Close stops the stats server and releases the store.
func (e *appEnv) Close() {
	if e.stop != nil {
		e.stop()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv opens the store, builds the archive fetcher and, when validate is
// set, the Nominatim client. Callers should defer env.Close().
func initEnv(ctx context.Context, validate bool) (*appEnv, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, cfg.Store.Pool)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}

	env := &appEnv{
		Store:   st,
		Stats:   stats.NewCounter(),
		Fetcher: fetcher.NewHTTPFetcher(cfg.Archive.FetcherOptions()),
	}

	if validate {
		var cache geocode.Cache = geocode.NewMemoryCache(cfg.Nominatim.CacheTTL())
		if st != nil {
			cache = geocode.NewStoreCache(st, cfg.Nominatim.CacheTTL())
		}
		env.Resolver = geocode.NewClient(cfg.Nominatim.ClientConfig(),
			geocode.WithCache(cache),
			geocode.WithStats(env.Stats),
		)
	}

	env.stop = startStatsServer(ctx, env.Stats, cfg.Server.Port)

	zap.L().Info("environment ready",
		zap.String("store", cfg.Store.Driver),
		zap.Bool("validate", validate),
		zap.Int("stats_port", cfg.Server.Port),
	)
	return env, nil
}

// runnerFlags are the flags shared by commands that process archives.
type runnerFlags struct {
	outDir        string
	remote        bool
	force         bool
	jobs          int
	paths         string
	first         int
	dropUnmatched bool
}

// Runner builds a pipeline runner from config overridden by flags.
func (e *appEnv) Runner(f runnerFlags) *pipeline.Runner {
	outDir := cfg.Extract.OutputDir
	if f.outDir != "" {
		outDir = f.outDir
	}
	keep := cfg.Nominatim.KeepUnmatched && !f.dropUnmatched

	opts := []pipeline.Option{
		pipeline.WithFetcher(e.Fetcher),
		pipeline.WithStats(e.Stats),
		pipeline.WithStore(e.Store),
	}
	if e.Resolver != nil {
		opts = append(opts, pipeline.WithResolver(e.Resolver))
	}
	return pipeline.NewRunner(pipeline.Config{
		OutputDir:     outDir,
		SkipExisting:  cfg.Extract.SkipExisting && !f.force,
		Remote:        f.remote,
		BaseURL:       cfg.Archive.BaseURL,
		Extract:       cfg.Extract.PipelineConfig(),
		Policy:        pipeline.PolicyFor(keep),
		Workers:       cfg.Nominatim.Workers,
		DLQMaxRetries: cfg.Nominatim.DLQMaxRetries,
	}, opts...)
}

// Jobs returns the archive parallelism from flags or config.
func (f runnerFlags) Jobs() int {
	if f.jobs > 0 {
		return f.jobs
	}
	return cfg.Extract.Jobs
}

// resolveArchives combines explicit arguments with the entries of a
// warc.paths listing. A listing given as a crawl-relative path or URL is
// downloaded; anything else is read from disk.
func resolveArchives(ctx context.Context, args []string, f runnerFlags, dl fetcher.Fetcher) ([]string, error) {
	archives := append([]string(nil), args...)
	if f.paths != "" {
		listed, err := readPathList(ctx, f.paths, dl)
		if err != nil {
			return nil, err
		}
		archives = append(archives, listed...)
	}
	if f.first > 0 && len(archives) > f.first {
		archives = archives[:f.first]
	}
	if len(archives) == 0 {
		return nil, eris.New("no archives given: pass paths as arguments or use --paths")
	}
	return archives, nil
}

func readPathList(ctx context.Context, src string, dl fetcher.Fetcher) ([]string, error) {
	var rc io.ReadCloser
	switch {
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		body, err := dl.Download(ctx, src)
		if err != nil {
			return nil, eris.Wrap(err, "download path list")
		}
		rc = body
	case strings.HasPrefix(src, "crawl-data/"):
		body, err := dl.Download(ctx, warc.RemoteURL(cfg.Archive.BaseURL, src))
		if err != nil {
			return nil, eris.Wrap(err, "download path list")
		}
		rc = body
	default:
		file, err := os.Open(src)
		if err != nil {
			return nil, eris.Wrap(err, "open path list")
		}
		rc = file
	}
	defer rc.Close() //nolint:errcheck
	return warc.ReadPathList(rc)
}
