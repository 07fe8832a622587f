package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/example/storefront/internal/config"
	"github.com/example/storefront/internal/database"
	"github.com/example/storefront/internal/handlers"
	"github.com/example/storefront/internal/messaging"
	"github.com/example/storefront/internal/repository"
	"github.com/example/storefront/internal/routes"
	"github.com/example/storefront/internal/services"
	"github.com/example/storefront/internal/telemetry"
)

var (
	autoMigrate     bool
	shutdownTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&autoMigrate, "migrate", true, "run schema migrations before serving")
	serveCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "grace period for in-flight requests")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.OTLPEndpoint, serviceName, Version)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, Version)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	metrics, err := telemetry.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	db, err := database.Connect(ctx, cfg.DatabaseURL, database.Options{
		Development:  cfg.Development(),
		MaxOpenConns: 25,
		MaxIdleConns: 5,
		ConnLifetime: 30 * time.Minute,
	}, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if autoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
	}

	var producer *messaging.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = messaging.NewProducer(cfg.KafkaBrokers)
	}

	app, notifier := newApp(cfg, db, sqlDB, metricsHandler, metrics, producer, logger)

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.AppPort, "env", cfg.AppEnv, "version", Version)
		listenErr <- app.Listen(":" + cfg.AppPort)
	}()

	select {
	case err = <-listenErr:
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err != nil {
		errs = append(errs, fmt.Errorf("listen: %w", err))
	}
	var events io.Closer
	if producer != nil {
		events = producer
	}
	errs = append(errs, drain(shutdownCtx, app, notifier, events)...)
	if err := sqlDB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	if err := shutdownMeter(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown meter: %w", err))
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
	}
	return errors.Join(errs...)
}

// newApp builds the services and mounts every route.
func newApp(
	cfg *config.Config,
	db *gorm.DB,
	pinger handlers.Pinger,
	metricsHandler http.Handler,
	metrics *telemetry.Metrics,
	producer *messaging.Producer,
	logger *slog.Logger,
) (*fiber.App, *services.Notifier) {
	store := repository.NewStore(db)

	var mailer services.Mailer
	if cfg.SMTPHost != "" {
		mailer = services.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom)
	}
	var events services.EventPublisher
	if producer != nil {
		events = producer
	}
	telegram := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat)
	notifier := services.NewNotifier(mailer, telegram, events, logger)

	pricing := services.Pricing{
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		FlatDeliveryFee:       cfg.FlatDeliveryFee,
		Currency:              cfg.Currency,
	}

	gateway := services.NewGatewayClient(cfg.GatewayBaseURL, cfg.GatewayKeyID, cfg.GatewayKeySecret, cfg.GatewayTimeout, metrics)
	payments := services.NewPaymentService(store.Orders, store.Users, gateway,
		cfg.GatewayKeyID, cfg.GatewayKeySecret, notifier, metrics, logger)

	carrier := services.NewCarrierClient(cfg.CarrierBaseURL, cfg.CarrierEmail, cfg.CarrierPassword, cfg.CarrierTimeout, metrics)
	tokens := services.NewCarrierTokenCache(carrier, cfg.CarrierTokenTTL, cfg.CarrierTokenLeeway,
		services.WithTokenMetrics(metrics),
		services.WithTokenLogger(logger),
	)

	orders := services.NewOrderService(store.Orders, store.Tx, logger)
	h := routes.Handlers{
		Auth:     handlers.NewAuthHandler(store.Users, cfg.JWTSecret, cfg.TokenExpires),
		Products: handlers.NewProductHandler(services.NewCatalogService(store.Products)),
		Cart: handlers.NewCartHandler(
			services.NewCartService(store.Carts, store.Products, pricing, metrics, logger)),
		Orders: handlers.NewOrderHandler(
			services.NewCheckoutService(store.Tx, payments, pricing, notifier, metrics, logger),
			orders,
			payments,
		),
		Shipments: handlers.NewShipmentHandler(services.NewShipmentService(
			store.Orders, store.Products, store.Shipments, tokens, carrier, cfg.Pickup, notifier, metrics, logger)),
		Admin:  handlers.NewAdminHandler(orders),
		Health: handlers.NewHealthHandler(pinger),
	}

	app := fiber.New(fiber.Config{
		AppName:      "Storefront Backend",
		ErrorHandler: handlers.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	routes.Register(app, h, cfg.JWTSecret, metricsHandler)
	return app, notifier
}

// drain stops accepting requests, lets background notifications finish and
// only then closes the event producer they publish through.
func drain(ctx context.Context, app *fiber.App, notifier *services.Notifier, events io.Closer) []error {
	var errs []error
	if err := app.ShutdownWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown server: %w", err))
	}
	if err := notifier.WaitContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("wait for notifications: %w", err))
	}
	if events != nil {
		if err := events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close producer: %w", err))
		}
	}
	return errs
}
