package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/andy/timebill/internal/config"
	"github.com/andy/timebill/internal/crypto"
	"github.com/andy/timebill/internal/db"
	"github.com/andy/timebill/internal/domain"
	"github.com/andy/timebill/internal/render"
	"github.com/andy/timebill/internal/repository"
	"github.com/andy/timebill/internal/service"
)

// App is the dependency injection container for all application components
type App struct {
	Config     *config.Config
	ConfigPath string
	DB         *db.DB
	Store      repository.Store
	Clock      domain.Clock
	Renderer   render.Renderer

	// Services
	Timer    service.TimerService
	Entries  service.EntryService
	Catalog  service.CatalogService
	Invoices service.InvoiceService
	Reports  service.ReportService
}

// New loads the config at configPath (the default path when empty) and
// builds the App from it.
func New(ctx context.Context, configPath string) (*App, error) {
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}

	return NewWithConfig(ctx, cfg, configPath)
}

// NewWithConfig creates an App with a provided config. It:
// 1. Ensures the owner identity exists (saved back to configPath)
// 2. Gets the encryption key when the database is encrypted
// 3. Opens the database and runs migrations
// 4. Wires the store, renderer and services
func NewWithConfig(ctx context.Context, cfg *config.Config, configPath string) (*App, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	if err := ensureOwner(cfg, configPath); err != nil {
		return nil, err
	}

	var key string
	if cfg.Database.Encrypted {
		var err error
		if key, err = databaseKey(crypto.NewKeyring()); err != nil {
			return nil, err
		}
	}

	database, err := db.Open(cfg.Database.Path, key)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.RunMigrations(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	taxRate, err := cfg.TaxRate()
	if err != nil {
		database.Close()
		return nil, err
	}

	store := repository.NewStore(database)
	clock := domain.SystemClock{}
	renderer := render.NewPDFRenderer()

	return &App{
		Config:     cfg,
		ConfigPath: configPath,
		DB:         database,
		Store:      store,
		Clock:      clock,
		Renderer:   renderer,
		Timer:      service.NewTimerService(store, clock),
		Entries:    service.NewEntryService(store, clock),
		Catalog:    service.NewCatalogService(store, clock),
		Invoices: service.NewInvoiceService(store, clock, renderer, service.InvoiceOptions{
			NumberPrefix:      cfg.Invoice.NumberPrefix,
			DefaultDueDays:    cfg.Invoice.DefaultDueDays,
			DefaultTaxRate:    taxRate,
			PaymentTerms:      cfg.Invoice.PaymentTerms,
			StrictTransitions: cfg.Invoice.StrictStatusTransitions,
			Issuer: render.Party{
				Name:    cfg.User.Name,
				Email:   cfg.User.Email,
				Address: cfg.User.Address,
				Phone:   cfg.User.Phone,
			},
		}),
		Reports: service.NewReportService(store, clock),
	}, nil
}

// Owner is the identity local commands act as
func (a *App) Owner() string {
	return a.Config.User.ID
}

// Close cleanly shuts down the application
func (a *App) Close() error {
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}

// SaveConfig saves the current configuration to disk
func (a *App) SaveConfig() error {
	return a.Config.Save(a.ConfigPath)
}

// ensureOwner assigns a stable owner id on first run
func ensureOwner(cfg *config.Config, configPath string) error {
	if cfg.User.ID != "" {
		return nil
	}

	cfg.User.ID = uuid.NewString()
	if configPath == "" {
		return nil
	}
	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("failed to save owner id: %w", err)
	}
	return nil
}

// databaseKey reads the stored key, prompting for a new one on first run
func databaseKey(kr crypto.Keyring) (string, error) {
	key, err := kr.GetKey()
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, crypto.ErrNoKey) {
		return "", err
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", err
	}

	fmt.Println("Setting up database encryption for the first time...")
	key, err = promptForPassword()
	if err != nil {
		return "", fmt.Errorf("failed to set password: %w", err)
	}
	if err := kr.SetKey(key); err != nil {
		return "", fmt.Errorf("failed to store encryption key: %w", err)
	}
	return key, nil
}

// promptForPassword asks for a new database password twice without echo
func promptForPassword() (string, error) {
	fmt.Println()
	fmt.Println("Your time tracking data will be encrypted with a password.")
	fmt.Println("This password will be stored securely in your system keyring.")
	fmt.Println()
	fmt.Print("Enter a password for database encryption: ")

	fd := int(os.Stdin.Fd())
	password, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if len(password) == 0 {
		return "", errors.New("password cannot be empty")
	}

	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read confirmation: %w", err)
	}
	if string(password) != string(confirm) {
		return "", errors.New("passwords do not match")
	}

	fmt.Println("Database encryption configured.")
	return string(password), nil
}
