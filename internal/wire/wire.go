// Package wire provides dependency injection for fieldstore.
// It creates singleton services with lazy initialization.
package wire

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	cliadapter "github.com/example/fieldstore/internal/adapters/cli"
	"github.com/example/fieldstore/internal/adapters/media"
	"github.com/example/fieldstore/internal/adapters/redisnotify"
	"github.com/example/fieldstore/internal/adapters/sqlite"
	"github.com/example/fieldstore/internal/app"
	"github.com/example/fieldstore/internal/config"
	"github.com/example/fieldstore/internal/db"
	"github.com/example/fieldstore/internal/logging"
	"github.com/example/fieldstore/internal/ports/primary"
	"github.com/example/fieldstore/internal/ports/secondary"
)

// Container holds every service built from one configuration.
type Container struct {
	Config *config.Config
	Logger *logging.Logger

	db       *sql.DB
	store    *sqlite.DocumentStore
	notifier *redisnotify.Notifier

	extractor  *media.Extractor
	normalizer *media.PassthroughNormalizer
	logWriter  secondary.LogWriter

	repository *app.DocumentRepositoryImpl
	transfer   *app.TransferServiceImpl
	logs       *app.LogServiceImpl
}

// New opens the database of cfg and builds the services on top of it.
func New(cfg *config.Config, logger *logging.Logger) (*Container, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	database, err := db.Open(cfg.DBPath())
	if err != nil {
		return nil, err
	}

	c := &Container{Config: cfg, Logger: logger, db: database}

	storeOpts := []sqlite.StoreOption{
		sqlite.WithPollInterval(cfg.PollInterval),
		sqlite.WithLogger(logger.With().Str("component", "store").Logger()),
	}
	if cfg.RedisURL != "" {
		n, err := redisnotify.New(cfg.RedisURL, cfg.Environment)
		if err != nil {
			database.Close()
			return nil, err
		}
		c.notifier = n
		storeOpts = append(storeOpts, sqlite.WithNotifier(n))
	}

	// Secondary adapters
	c.store = sqlite.NewDocumentStore(database, storeOpts...)
	logRepo := sqlite.NewActivityLogRepository(database)
	c.logWriter = sqlite.NewLogWriterAdapter(logRepo, cfg.Actor)
	c.extractor = media.NewExtractor()
	c.normalizer = media.NewPassthroughNormalizer()

	// Services
	retry := app.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.MaxConflictRetries
	retry.InitialDelay = cfg.RetryInitialDelay
	retry.MaxDelay = cfg.RetryMaxDelay

	c.repository = app.NewDocumentRepository(c.store, c.logWriter, retry, logger.With().Str("component", "repository").Logger())
	c.transfer = app.NewTransferService(c.repository, c.store, c.logWriter, app.TransferSettings{
		Extension:   cfg.ExportExtension,
		ContentType: cfg.ExportContentType,
	}, logger.With().Str("component", "transfer").Logger())
	c.logs = app.NewLogService(logRepo)

	return c, nil
}

// DocumentRepository returns the project/installation repository.
func (c *Container) DocumentRepository() primary.DocumentRepository {
	return c.repository
}

// TransferService returns the export/import service.
func (c *Container) TransferService() primary.TransferService {
	return c.transfer
}

// LogService returns the activity log service.
func (c *Container) LogService() primary.LogService {
	return c.logs
}

// StoreProvider returns a new, unstarted live store for one document.
func (c *Container) StoreProvider(opts primary.StoreOptions) primary.StoreProvider {
	logger := c.Logger.With().Str("component", "store-provider").Logger()
	return app.NewStoreProvider(c.repository, c.extractor, c.normalizer, c.logWriter, logger, opts)
}

// ProjectAdapter returns a ProjectAdapter writing to out.
func (c *Container) ProjectAdapter(out io.Writer) *cliadapter.ProjectAdapter {
	return cliadapter.NewProjectAdapter(c.repository, out)
}

// InstallationAdapter returns an InstallationAdapter writing to out.
func (c *Container) InstallationAdapter(out io.Writer) *cliadapter.InstallationAdapter {
	return cliadapter.NewInstallationAdapter(c.repository, out)
}

// Close releases the database, the notifier and the log file.
func (c *Container) Close() error {
	var errs []error
	if c.notifier != nil {
		errs = append(errs, c.notifier.Close())
	}
	if err := c.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database: %w", err))
	}
	errs = append(errs, c.Logger.Close())
	return errors.Join(errs...)
}

var (
	container *Container
	once      sync.Once
)

// initServices loads the configuration and builds the process-wide
// container. This is called once via sync.Once.
func initServices() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		log.Fatalf("failed to initialize logging: %v", err)
	}

	container, err = New(cfg, logger)
	if err != nil {
		log.Fatalf("failed to initialize services: %v", err)
	}
}

// Default returns the singleton container.
func Default() *Container {
	once.Do(initServices)
	return container
}

// DocumentRepository returns the singleton DocumentRepository instance.
func DocumentRepository() primary.DocumentRepository {
	return Default().DocumentRepository()
}

// TransferService returns the singleton TransferService instance.
func TransferService() primary.TransferService {
	return Default().TransferService()
}

// LogService returns the singleton LogService instance.
func LogService() primary.LogService {
	return Default().LogService()
}

// StoreProvider returns a new live store backed by the singleton services.
func StoreProvider(opts primary.StoreOptions) primary.StoreProvider {
	return Default().StoreProvider(opts)
}

// ProjectAdapter returns a new ProjectAdapter writing to stdout.
// Each call creates a new adapter (adapters are stateless translators).
func ProjectAdapter() *cliadapter.ProjectAdapter {
	return Default().ProjectAdapter(os.Stdout)
}

// InstallationAdapter returns a new InstallationAdapter writing to stdout.
func InstallationAdapter() *cliadapter.InstallationAdapter {
	return Default().InstallationAdapter(os.Stdout)
}

// Shutdown closes the singleton container if it was ever built.
func Shutdown() error {
	if container == nil {
		return nil
	}
	return container.Close()
}
