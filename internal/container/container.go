// Package container assembles the assessment pipeline's dependency graph:
// configuration, the database handle, the postgres repository, every
// internal subsystem, and the external service adapters the Orchestrator
// depends on through its narrow ports.
package container

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"gohypo/adapters/postgres"
	"gohypo/adapters/vision"
	"gohypo/app"
	domcontext "gohypo/domain/context"
	gohypolog "gohypo/internal"
	"gohypo/internal/adaptive"
	"gohypo/internal/conformal"
	"gohypo/internal/config"
	"gohypo/internal/critic"
	"gohypo/internal/fusion"
	"gohypo/internal/learning"
	"gohypo/internal/memory"
	"gohypo/internal/migration"
	"gohypo/internal/scheduler"
	"gohypo/ports"
)

// Container holds every assembled dependency and its lifecycle.
type Container struct {
	Config *config.Config
	Logger *gohypolog.Logger

	DB   *sqlx.DB
	Repo *postgres.Repository

	Detector     ports.DetectorPort
	Labeler      ports.VisionLabelerPort
	Segmentation ports.SegmentationPort
	VLM          ports.VLMAssessorPort

	Fusion     *fusion.Engine
	Conformal  *conformal.Predictor
	Critic     *critic.Critic
	Titans     *memory.Titans
	MemoryBank *memory.Bank
	Scheduler  *scheduler.Scheduler
	Adaptive   *adaptive.Engine
	Learning   *learning.Handler

	Orchestrator *app.Orchestrator
}

// New builds a Container from already-loaded configuration.
func New(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	return &Container{Config: cfg, Logger: gohypolog.DefaultLogger}, nil
}

// InitWithDatabase wires every component that depends on the database
// connection, then assembles the Orchestrator.
func (c *Container) InitWithDatabase(db *sqlx.DB) error {
	if db == nil {
		return fmt.Errorf("database connection cannot be nil")
	}
	if err := db.Ping(); err != nil {
		return fmt.Errorf("database connection test failed: %w", err)
	}
	c.DB = db
	c.Repo = postgres.New(db)

	c.initExternalServices()
	c.initSubsystems()
	c.initOrchestrator()

	c.Logger.Info("[Container] initialized successfully with database connection")
	return nil
}

// Migrate runs the schema migration runner against the container's
// database handle.
func (c *Container) Migrate(ctx context.Context) error {
	if c.DB == nil {
		return fmt.Errorf("database not initialized")
	}
	return migration.NewRunner().Run(ctx, c.DB)
}

func (c *Container) initExternalServices() {
	det := c.Config.Detector
	vis := c.Config.Vision

	c.Detector = vision.NewDetectorClient(det.DetectorURL, det.Timeout)
	c.Labeler = vision.NewLabelerClient(det.LabelerURL, det.Timeout)
	c.VLM = vision.NewVLMClient(vis.VLMURL, vis.VLMAPIKey, vis.VLMModel, vis.Timeout)
	if vis.SegmentationEnable {
		c.Segmentation = vision.NewSegmentationClient(vis.SegmentationURL, vis.Timeout)
	}
}

func (c *Container) initSubsystems() {
	c.Fusion = fusion.New(c.Config.Detector)
	c.Conformal = conformal.New(c.Repo, c.Config.Conformal, c.Logger)
	c.Critic = critic.New(c.Repo, c.Repo, c.Config.Safety, c.Config.SeedSafe)

	c.Titans = memory.NewTitans(c.Config.Memory.TitansEnabled, domcontext.Length)
	c.MemoryBank = memory.New(c.Repo, c.Config.Memory, c.Titans)
	c.Scheduler = scheduler.New(c.MemoryBank, c.Config.Memory.Levels, c.Logger)
	c.Adaptive = adaptive.New(c.Config.Memory)
	c.Learning = learning.New(c.MemoryBank, c.Adaptive, c.Config.Memory.Levels)
}

func (c *Container) initOrchestrator() {
	c.Orchestrator = app.New(app.Dependencies{
		Detector:     c.Detector,
		Labeler:      c.Labeler,
		Segmentation: c.Segmentation,
		VLM:          c.VLM,
		Repo:         c.Repo,
		Clock:        ports.SystemClock{},

		Fusion:     c.Fusion,
		Conformal:  c.Conformal,
		Critic:     c.Critic,
		MemoryBank: c.MemoryBank,
		Scheduler:  c.Scheduler,
		Learning:   c.Learning,

		Config: c.Config,
		Logger: c.Logger,
	})
}

// Shutdown gracefully releases the container's resources.
func (c *Container) Shutdown(ctx context.Context) error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
