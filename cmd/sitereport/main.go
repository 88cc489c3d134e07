// SiteReport Core - authentication and session service
//
// This is the main entry point for SiteReport Core. It issues and rotates
// the JWT access/refresh tokens used by the site reporting apps and keeps
// the session store that makes refresh tokens revocable.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nerrad567/sitereport-core/internal/api"
	"github.com/nerrad567/sitereport-core/internal/audit"
	"github.com/nerrad567/sitereport-core/internal/auth"
	"github.com/nerrad567/sitereport-core/internal/authevents"
	"github.com/nerrad567/sitereport-core/internal/infrastructure/config"
	"github.com/nerrad567/sitereport-core/internal/infrastructure/database"
	"github.com/nerrad567/sitereport-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/sitereport-core/internal/infrastructure/logging"
	"github.com/nerrad567/sitereport-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/sitereport-core/internal/infrastructure/redis"
	"github.com/nerrad567/sitereport-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting SiteReport Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"session_backend", cfg.Sessions.Backend,
	)

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	users := auth.NewUserRepository(db.DB)
	roles := auth.NewRoleRepository(db.DB)

	if cfg.Security.SeedAdmin.Enabled {
		if _, seedErr := auth.SeedAdmin(ctx, users, roles, cfg.Security.SeedAdmin.Username, log); seedErr != nil {
			return fmt.Errorf("seeding admin: %w", seedErr)
		}
	}

	// bg runs the background workers (purge loop, audit writer); they stop
	// when run returns.
	bg, stopBG := context.WithCancel(context.Background())
	defer stopBG()

	health := map[string]api.HealthChecker{"database": db}

	var store auth.SessionStore
	switch cfg.Sessions.Backend {
	case config.SessionBackendSQLite:
		sqliteStore := auth.NewSQLiteSessionStore(db.DB, log.With("component", "sessions"))
		go sqliteStore.RunPurgeLoop(bg, time.Duration(cfg.Sessions.PurgeInterval)*time.Second)
		store = sqliteStore
	default:
		rdb, connErr := redis.Connect(ctx, cfg.Redis)
		if connErr != nil {
			return fmt.Errorf("connecting to redis: %w", connErr)
		}
		defer func() {
			log.Info("closing redis")
			if closeErr := rdb.Close(); closeErr != nil {
				log.Error("error closing redis", "error", closeErr)
			}
		}()
		health["redis"] = rdb
		store = auth.NewRedisSessionStore(rdb.Client)
	}
	log.Info("session store ready", "backend", cfg.Sessions.Backend)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promSink, err := authevents.NewPrometheusSink(reg)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	auditRepo := audit.NewSQLiteRepository(db.DB)
	auditSink := authevents.NewAuditSink(auditRepo, log.With("component", "audit"))
	go auditSink.Run(bg)
	defer func() {
		stopBG()
		<-auditSink.Done()
	}()

	sinks := authevents.Multi{promSink, auditSink}

	if cfg.MQTT.Enabled {
		mqttClient, connErr := mqtt.Connect(ctx, cfg.MQTT)
		if connErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", connErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })

		health["mqtt"] = mqttClient
		mqttSink := authevents.NewMQTTSink(mqttClient, mqttClient.Topics(), mqttClient.QoS(), log.With("component", "mqtt_events"))
		go mqttSink.Run(bg)
		// Registered after Close so queued events go out before disconnect.
		defer func() {
			stopBG()
			<-mqttSink.Done()
		}()
		sinks = append(sinks, mqttSink)
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	if cfg.InfluxDB.Enabled {
		influxClient, connErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if connErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", connErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		health["influxdb"] = influxClient
		sinks = append(sinks, authevents.NewInfluxSink(influxClient, cfg.App.ID))
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	svc, err := auth.NewService(auth.Config{
		Secret:     cfg.Security.JWT.Secret,
		Issuer:     cfg.Security.JWT.Issuer,
		AccessTTL:  cfg.Security.JWT.AccessTTL(),
		RefreshTTL: cfg.Security.JWT.RefreshTTL(),
	}, auth.Deps{
		Users:  users,
		Roles:  roles,
		Store:  store,
		Events: sinks,
		Logger: log.With("component", "auth"),
	})
	if err != nil {
		return fmt.Errorf("building auth service: %w", err)
	}

	if err := healthCheck(ctx, health); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	server, err := api.New(api.Deps{
		Config:  cfg.API,
		Logger:  log,
		Auth:    svc,
		Audit:   auditRepo,
		Metrics: reg,
		Health:  health,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred closes run in reverse order: API server, InfluxDB, MQTT,
	// audit drain, Redis, database.
	return nil
}

// getConfigPath returns SITEREPORT_CONFIG if set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv("SITEREPORT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck returns the first failing component, checked in name order.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for _, name := range []string{"database", "redis", "mqtt", "influxdb"} {
		c, ok := checks[name]
		if !ok {
			continue
		}
		if err := c.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
