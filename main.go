package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"quiz-elimination-engine/config"
	"quiz-elimination-engine/handlers"
	"quiz-elimination-engine/models"
	"quiz-elimination-engine/services"
	"quiz-elimination-engine/utils"
	"quiz-elimination-engine/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "quiz-elimination-engine",
		Short:         "Elimination & rescue engine for live quiz matches",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newSeedCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := bootstrap()
			if err != nil {
				return err
			}
			if migrate {
				if err := db.AutoMigrate(models.All()...); err != nil {
					return fmt.Errorf("failed to migrate database: %w", err)
				}
			}
			return serve(cfg, db)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "run schema migrations before serving")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the engine tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := bootstrap()
			if err != nil {
				return err
			}
			if err := db.AutoMigrate(models.All()...); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
			log.Println("✅ Migrations applied")
			return nil
		},
	}
}

func newSeedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load matches, contestants, rescues and results from a YAML fixture",
		RunE: func(cmd *cobra.Command, args []string) error {
			fixture, err := utils.LoadFixture(file)
			if err != nil {
				return err
			}
			_, db, err := bootstrap()
			if err != nil {
				return err
			}
			if err := db.AutoMigrate(models.All()...); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
			matches, err := fixture.Apply(db)
			if err != nil {
				return err
			}
			for _, m := range matches {
				log.Printf("✅ Seeded match %d (%s)", m.ID, m.Slug)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "fixture.yaml", "fixture file")
	return cmd
}

func bootstrap() (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	db, err := config.OpenDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func serve(cfg *config.Config, db *gorm.DB) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var locker services.MatchLocker = services.NewLocalMatchLocker()
	rdb, err := config.OpenRedis(cfg)
	if err != nil {
		return err
	}
	if rdb != nil {
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rdb.Close()
		locker = services.NewRedisMatchLocker(rdb, cfg.LockTTL)
		log.Println("🔒 Per-match locks held in Redis")
	}

	var ledger services.ResultLedger = services.NewGormResultLedger(db)
	if cfg.ResultLedgerURL != "" {
		ledger = workers.NewLedgerClient(cfg.ResultLedgerURL, cfg.ResultLedgerToken)
		log.Printf("📊 Result ledger: %s", cfg.ResultLedgerURL)
	}

	broadcaster := services.NewBroadcaster()
	scope := services.NewMatchScope(db, locker, cfg.LockWait)
	participations := services.NewParticipationService(scope, broadcaster, cfg.MaxBatchSize)
	rescues := services.NewRescueService(scope, ledger, broadcaster, participations)

	if cfg.RescueSweepInterval > 0 {
		sched, err := rescues.StartRescueSweep(cfg.RescueSweepInterval)
		if err != nil {
			return fmt.Errorf("failed to start rescue sweep: %w", err)
		}
		defer sched.Shutdown()
		log.Printf("✅ Rescue window sweep every %s", cfg.RescueSweepInterval)
	}

	app := fiber.New()
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods: "GET,POST,PUT,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-User-ID, X-User-Roles",
		MaxAge:       86400,
	}))
	handlers.SetupMatchRoutes(app, handlers.NewMatchHandler(participations, rescues, broadcaster), cfg.RequestTimeout)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("Server error: %v", err)
			stop()
		}
	}()
	log.Printf("✅ Server running on http://localhost:%s", cfg.Port)

	<-ctx.Done()
	log.Println("Shutting down server...")
	return app.Shutdown()
}
