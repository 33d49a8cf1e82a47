// Package bootstrap wires the engine packages to a concrete Store and the
// external collaborator adapters, the shared construction path for both
// cmd/jobtrail (CLI) and cmd/server (ops HTTP surface) — grounded on the
// teacher's cmd/api/main.go, which built every module's service from the
// same Config the same way before dispatch diverged.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kazimov/jobtrail/batch"
	"github.com/kazimov/jobtrail/centroid"
	"github.com/kazimov/jobtrail/classifier"
	"github.com/kazimov/jobtrail/domain"
	"github.com/kazimov/jobtrail/internal/adapters/embedding"
	"github.com/kazimov/jobtrail/internal/adapters/inbox"
	"github.com/kazimov/jobtrail/internal/adapters/submitter"
	"github.com/kazimov/jobtrail/internal/config"
	"github.com/kazimov/jobtrail/internal/platform/email"
	"github.com/kazimov/jobtrail/internal/platform/logger"
	platformpostgres "github.com/kazimov/jobtrail/internal/platform/postgres"
	platformredis "github.com/kazimov/jobtrail/internal/platform/redis"
	"github.com/kazimov/jobtrail/internal/platform/sentryreport"
	"github.com/kazimov/jobtrail/internal/platform/storage"
	"github.com/kazimov/jobtrail/matcher"
	"github.com/kazimov/jobtrail/ports"
	"github.com/kazimov/jobtrail/rewrite"
	"github.com/kazimov/jobtrail/scheduler"
	"github.com/kazimov/jobtrail/selector"
	"github.com/kazimov/jobtrail/store"
)

// Components holds every wired engine piece a caller (CLI command or the
// server's request handlers) might need. Closers is populated in
// dependency order so Close can run it in reverse.
type Components struct {
	Config      *config.Config
	Log         *logger.Logger
	Store       ports.Store
	Spooler     *store.Spooling // non-nil when Store spills to a local spool ahead of a server engine (§6)
	Embedder    ports.EmbeddingModel
	Classifier  *classifier.Classifier
	Coordinator *batch.Coordinator
	Matcher     *matcher.Matcher
	Centroid    *centroid.Engine
	Rewrite     *rewrite.Trigger
	Scheduler   *scheduler.Scheduler
	SelectorCfg selector.Config

	closers []func()
}

// Close releases everything Build opened, in reverse acquisition order.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// Build wires a Store (embedded spool by default, Postgres server engine
// when STORE_BACKEND=postgres), the embedding adapter, every engine
// package, and — when the operator has configured a Redis DSN and an S3
// bucket — the Scheduler's cross-host lock and Backuper. Collaborators
// left unconfigured (Submitter, Inbox, email Notifier) are adapted
// best-effort: commands that need them fail with a clear error rather
// than the whole CLI refusing to start.
func Build(ctx context.Context, cfg *config.Config) (*Components, error) {
	if err := sentryreport.Init(cfg.Sentry.DSN, cfg.Sentry.Environment); err != nil {
		return nil, fmt.Errorf("init sentry: %w", err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	c := &Components{Config: cfg, Log: log}

	var st ports.Store
	if cfg.Spool.Backend == "postgres" {
		pg, err := platformpostgres.New(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		primary := store.NewPostgresStore(pg.Pool, cfg.Embed.ModelVersion)

		// The server engine is the preferred backend, but §6 requires
		// writes to spill to a local single-file spool when it goes
		// unreachable mid-run; Spooling wraps primary with exactly that
		// fallback, backed by the same embedded engine used standalone.
		spoolPath := cfg.Spool.Path
		if spoolPath == "" {
			spoolPath = "jobtrail-spool.db"
		}
		es, err := store.OpenEmbedded(ctx, spoolPath, cfg.Embed.ModelVersion)
		if err != nil {
			return nil, fmt.Errorf("open local spool: %w", err)
		}
		spooling := store.NewSpooling(primary, es, log.Logger)
		c.closers = append(c.closers, func() { _ = spooling.Close() })
		c.Spooler = spooling
		st = spooling

		// §6: spooled writes are "best-effort flushed on the next
		// top-level operation" in addition to an explicit sync — every
		// command built against a spooling store gets one drain attempt
		// up front, not just the sync command.
		if flushed, err := spooling.Flush(ctx); err != nil {
			log.Debug("spool flush on startup skipped: " + err.Error())
		} else if flushed > 0 {
			log.Info(fmt.Sprintf("flushed %d spooled write(s) from a prior outage", flushed))
		}
	} else {
		es, err := store.OpenEmbedded(ctx, cfg.Spool.Path, cfg.Embed.ModelVersion)
		if err != nil {
			return nil, fmt.Errorf("open embedded store: %w", err)
		}
		c.closers = append(c.closers, func() { _ = es.Close() })
		st = es
	}
	c.Store = st

	var embedder ports.EmbeddingModel
	if cfg.Embed.Mode == "http" && cfg.Embed.HTTPBaseURL != "" {
		embedder = embedding.NewHTTP(cfg.Embed.HTTPBaseURL, cfg.Embed.ModelVersion, cfg.Embed.Dimensions, nil)
	} else {
		embedder = embedding.NewLocal(cfg.Embed.Dimensions)
	}
	c.Embedder = embedder

	seeds := classifier.DefaultSeedDictionary()
	cls, err := classifier.New(ctx, seeds, embedder)
	if err != nil {
		return nil, fmt.Errorf("build classifier: %w", err)
	}
	c.Classifier = cls

	var sub ports.Submitter
	if cfg.Submitter.BaseURL != "" {
		sub = submitter.NewHTTP(cfg.Submitter.BaseURL, nil)
	}
	c.Coordinator = batch.New(st, sub)

	matcherCfg := matcher.Config{AutoMatchConfidence: cfg.Engine.MatchAutoConfidence}
	c.Matcher = matcher.New(st, matcherCfg)

	vocabulary := buildVocabulary(ctx, seeds, embedder)
	centroidCfg := centroid.Config{WindowDays: cfg.Engine.WindowDays, MinWindowJDCount: cfg.Engine.MinWindowJDCount}
	c.Centroid = centroid.New(st, centroidCfg, vocabulary)

	rewriteCfg := rewrite.Config{
		ShiftThreshold:     cfg.Engine.ShiftThreshold,
		StalenessThreshold: cfg.Engine.StalenessThreshold,
		RewriteCooldown:    time.Duration(cfg.Engine.RewriteCooldownDays) * 24 * time.Hour,
	}
	trigger := rewrite.New(st, rewriteCfg)
	if cfg.Email.APIKey != "" {
		trigger = trigger.WithNotifier(email.New(cfg.Email.APIKey, cfg.Email.From, cfg.Email.To))
	}
	c.Rewrite = trigger

	c.SelectorCfg = selector.Config{
		CombinedScoreThreshold: cfg.Engine.CombinedScoreThreshold,
		CloseCallDelta:         cfg.Engine.CloseCallDelta,
	}

	var inb ports.Inbox
	if cfg.Inbox.BaseURL != "" {
		inb = inbox.NewHTTP(cfg.Inbox.BaseURL, nil)
	}

	var lock ports.Lock
	if cfg.Redis.Host != "" {
		rc, err := platformredis.New(ctx, cfg.Redis)
		if err != nil {
			log.Warn("redis unavailable, cross-host locking disabled: " + err.Error())
		} else {
			c.closers = append(c.closers, func() { _ = rc.Close() })
			lock = platformredis.NewLock(rc, "jobtrail:lock:")
		}
	}
	if lock == nil {
		lock = noLock{}
	}

	var backuper scheduler.Backuper
	if cfg.S3.Bucket != "" {
		s3c, err := storage.NewS3Client(cfg.S3)
		if err != nil {
			log.Warn("s3 unavailable, backups disabled: " + err.Error())
		} else {
			opener := func() (io.ReadCloser, error) { return os.Open(cfg.Spool.Path) }
			backuper = storage.NewBackuper(s3c, "jobtrail-backups", opener, time.Now)
		}
	}

	c.Scheduler = scheduler.New(st, cls, c.Coordinator, c.Matcher, c.Centroid, c.Rewrite,
		inb, lock, backuper, c.SelectorCfg, scheduler.DefaultConfig(), log.Logger)

	return c, nil
}

// buildVocabulary embeds every configured seed phrase and sentence
// indicator once at startup, the centroid engine's read-mostly reference
// vocabulary for term-drift diffs (§4.6, §5).
func buildVocabulary(ctx context.Context, seeds *classifier.SeedDictionary, embedder ports.EmbeddingModel) []centroid.Term {
	var terms []centroid.Term
	seen := map[string]bool{}
	for _, arch := range domain.Archetypes {
		as := seeds.Archetypes[arch]
		phrases := append(append([]string{}, as.SeedPhrases...), as.SentenceIndicators...)
		for _, phrase := range phrases {
			if seen[phrase] {
				continue
			}
			seen[phrase] = true
			vec, err := embedder.Embed(ctx, phrase)
			if err != nil {
				continue
			}
			terms = append(terms, centroid.Term{Phrase: phrase, Embedding: vec})
		}
	}
	return terms
}

// noLock is the zero-configuration fallback when no Redis DSN is set: a
// single CLI invocation or single-instance server needs no cross-host
// lock, only the in-process singleflight collapsing the Scheduler already
// does on its own.
type noLock struct{}

func (noLock) TryAcquire(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	return "local", true, nil
}
func (noLock) Release(ctx context.Context, name, token string) error { return nil }
