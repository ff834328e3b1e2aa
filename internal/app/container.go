package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/doeshing/mmrl-go/internal/application/doctor"
	"github.com/doeshing/mmrl-go/internal/application/install"
	"github.com/doeshing/mmrl-go/internal/application/modules"
	"github.com/doeshing/mmrl-go/internal/domain"
	"github.com/doeshing/mmrl-go/internal/infrastructure/config"
	"github.com/doeshing/mmrl-go/internal/infrastructure/content"
	"github.com/doeshing/mmrl-go/internal/infrastructure/modmanager"
	"github.com/doeshing/mmrl-go/internal/infrastructure/privilege"
	"github.com/doeshing/mmrl-go/internal/infrastructure/repository"
	"github.com/doeshing/mmrl-go/internal/infrastructure/rootshell"
	"github.com/doeshing/mmrl-go/internal/infrastructure/security"
	"github.com/doeshing/mmrl-go/internal/infrastructure/staging"
	"github.com/doeshing/mmrl-go/internal/infrastructure/webui"
	"github.com/doeshing/mmrl-go/internal/pkg/logger"
)

// Options controls how the container is built.
type Options struct {
	ConfigPath string
	Verbose    bool
}

// Container wires up application services with infrastructure adapters.
type Container struct {
	Config        domain.Config
	ConfigLoader  *config.FileLoader
	Logger        *logger.ZapLogger
	Privilege     *privilege.Detector
	Shells        *rootshell.Manager
	Modules       *modmanager.ShellModuleManager
	Content       *content.Resolver
	Staging       *staging.Dir
	Store         *repository.SQLiteStore
	Opener        *webui.ShellOpener
	Navigation    *security.NavigationGuard
	InstallEngine *install.Engine
	ModuleService *modules.Service
	DoctorService *doctor.Service
}

// BuildContainer constructs the dependency graph. Nothing privileged happens
// here: the backend is probed and the root shell opened on first use.
func BuildContainer(ctx context.Context, opts Options) (*Container, error) {
	cfgLoader := config.NewFileLoader(opts.ConfigPath)
	cfg, err := cfgLoader.Load(ctx)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(opts.Verbose || cfg.Preferences.DeveloperMode)
	if err != nil {
		return nil, err
	}

	store, err := repository.Open(cfg.Paths.Database)
	if err != nil {
		return nil, err
	}

	detector := privilege.NewDetector(cfg, log)
	shells := rootshell.NewManager(cfg, detector, log)
	manager := modmanager.New(cfg, shells, detector, log)
	resolver := content.NewResolver(log)
	stage := staging.NewFromConfig(cfg, log)
	opener := webui.NewShellOpener(cfg, shells, log)

	guard, err := security.NewNavigationGuardFromConfig(cfg, opener, log)
	if err != nil {
		store.Close()
		return nil, err
	}

	engine := &install.Engine{
		Privilege:  detector,
		Modules:    manager,
		Content:    resolver,
		Stager:     stage,
		Local:      store,
		Versions:   store,
		History:    store,
		Logger:     log,
		BufferSize: cfg.GetEventBufferSize(),
	}

	moduleService := &modules.Service{
		Modules:  manager,
		Local:    store,
		Versions: store,
		Logger:   log,
	}

	doctorService := &doctor.Service{
		ConfigProvider: cfgLoader,
		Privilege:      detector,
		Shells:         shells,
		Store:          store,
		StagingDir:     stage.Path(),
	}

	return &Container{
		Config:        cfg,
		ConfigLoader:  cfgLoader,
		Logger:        log,
		Privilege:     detector,
		Shells:        shells,
		Modules:       manager,
		Content:       resolver,
		Staging:       stage,
		Store:         store,
		Opener:        opener,
		Navigation:    guard,
		InstallEngine: engine,
		ModuleService: moduleService,
		DoctorService: doctorService,
	}, nil
}

// NewWebUIServer binds a loopback server for one module's web bundle.
func (c *Container) NewWebUIServer(moduleID string) (*webui.Server, error) {
	if moduleID == "" {
		return nil, fmt.Errorf("module id is required")
	}
	host := webui.NewHost(c.Config, moduleID, c.Shells, c.Logger)
	return webui.NewServer(host, c.Config.GetWebUIDomain(), c.Config.GetListenAddr(), c.Logger)
}

// Close tears down the root shell and the database.
func (c *Container) Close() error {
	var errs []error
	if c.Shells != nil {
		if err := c.Shells.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close root shell: %w", err))
		}
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
	return errors.Join(errs...)
}
