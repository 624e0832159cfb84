// Package app wires configuration into stores, services and queues. Both the
// API server and trovectl build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"trove/internal/blobstore"
	"trove/internal/catalog"
	"trove/internal/config"
	"trove/internal/docstore"
	"trove/internal/pgmq"
	"trove/internal/pubsub"
	"trove/internal/receipt"
	"trove/internal/repository"
	"trove/internal/secrets"
	"trove/internal/service"
)

// App holds the assembled services.
type App struct {
	Config      *config.Config
	Catalog     *catalog.Catalog
	Users       service.UserService
	Templates   service.TemplateService
	Collections service.CollectionService
	Items       service.ItemService
	Reconcile   service.ReconcileService
	// Queue is nil when running on the in-memory store; reconcile jobs are
	// then recounted inline.
	Queue *pgmq.Client

	closers []func() error
	logger  zerolog.Logger
}

// Open connects every backend named by cfg. Empty settings fall back to
// in-process implementations so the API can run without infrastructure.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Catalog: catalog.Builtin(), logger: logger}
	if err := a.open(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) open(ctx context.Context) error {
	cfg := a.Config
	logger := a.logger

	// 1. Document store and reconcile queue
	var store docstore.Store
	if cfg.UsesMemoryStore() {
		logger.Warn().Msg("DB_CONNECTION_STRING not set, using in-memory document store")
		store = docstore.NewMemoryStore()
	} else {
		pool, err := openPool(ctx, cfg)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		logger.Info().Msg("Database connection successful")

		pg := docstore.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate document store: %w", err)
		}
		store = pg

		db := stdlib.OpenDBFromPool(pool)
		a.closers = append(a.closers, db.Close)
		a.Queue = pgmq.New(db)
		if err := a.Queue.EnsureQueue(ctx, cfg.ReconcileQueueName); err != nil {
			return err
		}
	}

	// 2. Blob storage
	var blobs blobstore.Store
	if cfg.S3Bucket == "" {
		logger.Warn().Msg("S3_BUCKET not set, keeping photos in memory")
		blobs = blobstore.NewMemoryStore()
	} else {
		s3Store, err := blobstore.NewS3Store(ctx, blobstore.S3Config{
			Endpoint:  cfg.S3URL,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		blobs = s3Store
	}

	// 3. Reservation receipts
	var receipts receipt.Store
	if cfg.RedisURL == "" {
		receipts = receipt.NewMemoryStore(cfg.ReceiptTTL())
	} else {
		rs, err := receipt.NewRedisStore(cfg.RedisURL, cfg.ReceiptTTL())
		if err != nil {
			return err
		}
		a.closers = append(a.closers, rs.Close)
		if err := rs.Ping(ctx); err != nil {
			return fmt.Errorf("failed to ping Redis: %w", err)
		}
		receipts = rs
	}

	// 4. Domain events
	var publisher pubsub.Publisher
	if cfg.GCPProjectID == "" {
		logger.Warn().Msg("GCP_PROJECT_ID not set, domain events are logged only")
		publisher = pubsub.NewLogPublisher(logger)
	} else {
		p, err := pubsub.NewPublisher(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to create Pub/Sub publisher: %w", err)
		}
		a.closers = append(a.closers, p.Close)
		publisher = p
	}
	events := pubsub.NewEmitter(publisher, cfg.PubSubEventsTopic, logger)

	// 5. Repositories & services
	userRepo := repository.NewUserRepo(store)
	collectionRepo := repository.NewCollectionRepo(store)
	itemRepo := repository.NewItemRepo(store)
	templateRepo := repository.NewTemplateRepo(store)
	eventRepo := repository.NewSubscriptionEventRepo(store)

	ledger := service.NewQuotaLedger(userRepo, collectionRepo, receipts, cfg.StrictQuota, logger)
	a.Reconcile = service.NewReconcileService(collectionRepo, itemRepo, ledger, logger)

	var queue service.ReconcileQueue
	if a.Queue != nil {
		queue = service.NewPGMQReconcileQueue(a.Queue, cfg.ReconcileQueueName)
	} else {
		queue = service.NewInlineReconcileQueue(a.Reconcile)
	}

	a.Users = service.NewUserService(userRepo, eventRepo, events, logger)
	a.Templates = service.NewTemplateService(a.Catalog, templateRepo, ledger, events, logger)
	a.Collections = service.NewCollectionService(collectionRepo, itemRepo, a.Templates, ledger, queue, blobs, events, logger)
	a.Items = service.NewItemService(collectionRepo, itemRepo, a.Templates, ledger, queue, blobs, events, logger)
	return nil
}

// JWTKey resolves the token verification key, reading Secret Manager when
// JWT_SECRET_NAME is set.
func (a *App) JWTKey(ctx context.Context) (string, error) {
	var accessor secrets.Accessor
	if a.Config.JWTSecretName != "" {
		sm, err := secrets.NewSecretManager(ctx, a.Config.GCPProjectID)
		if err != nil {
			return "", fmt.Errorf("failed to create Secret Manager client: %w", err)
		}
		defer sm.Close()
		accessor = sm
	}
	return secrets.JWTSecret(ctx, a.Config, accessor)
}

// Close releases backend connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	dsn := cfg.DBConnectionString
	// local Postgres usually runs without TLS
	if cfg.Environment == "development" && !strings.Contains(dsn, "sslmode") {
		dsn += dsnSeparator(dsn) + "sslmode=disable"
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DB connection string: %w", err)
	}
	// transaction poolers like pgbouncer cannot keep server-side prepared statements
	if cfg.Environment != "development" {
		poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}
	poolCfg.MaxConns = 25
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open DB connection: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return pool, nil
}

// dsnSeparator picks how to append a parameter to a URL or key/value DSN.
func dsnSeparator(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		if strings.Contains(dsn, "?") {
			return "&"
		}
		return "?"
	}
	return " "
}
