package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/customeros/mailclean/config"
	"github.com/customeros/mailclean/internal/database"
	"github.com/customeros/mailclean/internal/logger"
	"github.com/customeros/mailclean/internal/models"
	"github.com/customeros/mailclean/internal/repository"
	"github.com/customeros/mailclean/internal/utils"
	"github.com/customeros/mailclean/server"
	"github.com/customeros/mailclean/services"
	"github.com/customeros/mailclean/services/events"
)

func main() {
	app := &cli.App{
		Name:  "mailclean",
		Usage: "plan, preview and apply mailbox cleanups",
		Commands: []*cli.Command{
			{
				Name:   "server",
				Usage:  "Start the application server",
				Action: runServer,
			},
			{
				Name:   "migrate",
				Usage:  "Run database migrations",
				Action: runMigrate,
			},
			{
				Name:   "scan",
				Usage:  "Scan the mailbox once and print the scan run",
				Action: runScan,
			},
			{
				Name:  "audit-tail",
				Usage: "Print audit entries published to RabbitMQ as they arrive",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "queue",
						Value: events.QueueAuditEvents,
						Usage: "queue to consume",
					},
				},
				Action: runAuditTail,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, errors.Wrap(err, "config initialization failed")
	}
	return cfg, nil
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.InitDatabase(cfg.DatabaseConfig)
	if err != nil {
		return nil, errors.Wrap(err, "database initialization failed")
	}
	return db, nil
}

func newLogger(cfg *config.Config) logger.Logger {
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()
	return appLogger
}

func runServer(_ *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("Mailclean starting up...")

	srv, err := server.NewServer(cfg, db)
	if err != nil {
		return errors.Wrap(err, "server setup failed")
	}
	if err := srv.Run(); err != nil {
		return errors.Wrap(err, "server startup failed")
	}

	log.Println("Shutdown complete")
	return nil
}

func runMigrate(_ *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	if err := repository.MigrateDB(cfg.DatabaseConfig, db); err != nil {
		return errors.Wrap(err, "database migration failed")
	}
	log.Println("Database migration completed successfully")
	return nil
}

func runScan(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	appLogger := newLogger(cfg)

	ctx := utils.WithCustomContext(c.Context, &utils.CustomContext{AppSource: utils.AppSourceCli})
	svcs, err := services.InitServices(ctx, cfg, appLogger, repository.InitRepositories(db))
	if err != nil {
		return err
	}
	defer svcs.Close()

	run, err := svcs.Scanner.Scan(ctx)
	if err != nil {
		return errors.Wrap(err, "scan failed")
	}
	return printJSON(run)
}

func runAuditTail(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.RabbitMQConfig.URL == "" {
		return errors.New("RABBITMQ_URL is not set")
	}
	appLogger := newLogger(cfg)

	subscriber, err := events.NewRabbitMQSubscriber(cfg.RabbitMQConfig.URL, appLogger)
	if err != nil {
		return err
	}
	defer subscriber.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = subscriber.Consume(ctx, c.String("queue"), func(_ context.Context, entry *models.AuditEntry) error {
		return printJSON(entry)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
