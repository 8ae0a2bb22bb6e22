package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/wispcore/internal/audit"
	"github.com/dropDatabas3/wispcore/internal/cache"
	cachemem "github.com/dropDatabas3/wispcore/internal/cache/memory"
	cacheredis "github.com/dropDatabas3/wispcore/internal/cache/redis"
	"github.com/dropDatabas3/wispcore/internal/clientes"
	"github.com/dropDatabas3/wispcore/internal/config"
	httpx "github.com/dropDatabas3/wispcore/internal/http"
	"github.com/dropDatabas3/wispcore/internal/idempotency"
	"github.com/dropDatabas3/wispcore/internal/instalaciones"
	"github.com/dropDatabas3/wispcore/internal/metrics"
	"github.com/dropDatabas3/wispcore/internal/observability/logger"
	"github.com/dropDatabas3/wispcore/internal/orquestador"
	"github.com/dropDatabas3/wispcore/internal/pagos"
	"github.com/dropDatabas3/wispcore/internal/red"
	migrations "github.com/dropDatabas3/wispcore/migrations/postgres"
)

// Puertos por defecto cuando se sirven varios servicios en un solo proceso.
// Siguen la numeración del despliegue original.
var defaultAddrs = map[string]string{
	"clientes":      ":8000",
	"orquestador":   ":8001",
	"pagos":         ":8003",
	"instalaciones": ":8004",
	"red":           ":8020",
}

func main() {
	_ = godotenv.Load()

	var configPath string

	rootCmd := &cobra.Command{
		Use:   "wispcore",
		Short: "Núcleo de back-office para WISP: red, instalaciones, pagos, clientes y orquestador",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "ruta del YAML de configuración")

	serveCmd := &cobra.Command{
		Use:   "serve [servicio,...]",
		Short: "Levanta uno o más servicios HTTP (default: todos)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			logger.Init(logger.Config{
				Env:         cfg.App.Env,
				Level:       cfg.App.LogLevel,
				ServiceName: "wispcore",
			})
			defer func() { _ = logger.Sync() }()
			return serve(cmd.Context(), cfg, parseServicios(args))
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate [up|down] [steps]",
		Short: "Aplica las migraciones embebidas de Postgres",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if cfg.Storage.DSN == "" {
				return errors.New("falta storage.dsn (o DATABASE_URL)")
			}
			action := "up"
			if len(args) >= 1 {
				action = strings.ToLower(args[0])
			}
			steps := 0
			if len(args) == 2 {
				fmt.Sscanf(args[1], "%d", &steps)
			}
			return migrate(cmd.Context(), cfg.Storage.DSN, action, steps)
		},
	}

	rootCmd.AddCommand(serveCmd, migrateCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseServicios(args []string) []string {
	var out []string
	for _, a := range args {
		for _, s := range strings.Split(a, ",") {
			if s = strings.TrimSpace(strings.ToLower(s)); s != "" {
				out = append(out, s)
			}
		}
	}
	if len(out) == 0 {
		out = []string{"clientes", "orquestador", "pagos", "instalaciones", "red"}
	}
	return out
}

func serve(ctx context.Context, cfg *config.Config, servicios []string) error {
	log := logger.Named("serve")

	var pool *pgxpool.Pool
	if cfg.Storage.DSN != "" {
		var err error
		pool, err = pgxpool.New(ctx, cfg.Storage.DSN)
		if err != nil {
			return fmt.Errorf("pgxpool: %w", err)
		}
		defer pool.Close()
		log.Info("storage postgres conectado")
	} else {
		log.Warn("sin DSN: stores en memoria, solo para desarrollo")
	}

	if err := metrics.Register(nil); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	metricsHandler, err := httpx.RegisterMetrics(nil)
	if err != nil {
		return fmt.Errorf("metrics http: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for _, nombre := range servicios {
		handler, cleanup, err := buildService(cfg, pool, nombre, metricsHandler)
		if err != nil {
			return err
		}
		if cleanup != nil {
			defer cleanup()
		}

		addr := defaultAddrs[nombre]
		if len(servicios) == 1 {
			addr = cfg.Server.Addr
		}
		srv := &http.Server{
			Addr:              addr,
			Handler:           wrap(handler, nombre, cfg.Server.CORSAllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			log.Info("servicio escuchando", logger.Component(nombre), logger.Path(addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s: %w", nombre, err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shCtx)
		})
	}

	err = g.Wait()
	log.Info("apagado completo")
	return err
}

// wrap arma la cadena estándar de middlewares alrededor de un servicio.
func wrap(h http.Handler, servicio string, corsOrigins []string) http.Handler {
	wrapped := httpx.WithMetrics(h, servicio)
	wrapped = httpx.WithLogging(wrapped)
	wrapped = httpx.WithRecover(wrapped)
	wrapped = httpx.WithCorrelationID(wrapped)
	wrapped = httpx.WithRequestID(wrapped)
	return httpx.WithCORS(wrapped, corsOrigins)
}

// buildService instancia un servicio por nombre con sus stores (pg o memoria).
func buildService(cfg *config.Config, pool *pgxpool.Pool, nombre string, metricsHandler http.Handler) (http.Handler, func(), error) {
	switch nombre {
	case "red":
		var store red.Store
		var ledger *idempotency.Ledger
		if pool != nil {
			store = red.NewPGStore(pool)
			ledger = idempotency.New(idempotency.NewPGStore(pool, "idem_red"))
		} else {
			store = red.NewMemStore()
			ledger = idempotency.New(idempotency.NewMemStore())
		}
		trail, err := audit.NewTrail(cfg.Red.AuditPath)
		if err != nil {
			return nil, nil, fmt.Errorf("audit trail: %w", err)
		}
		svc := red.NewService(store, ledger, trail, cfg.Red.RouterMode)
		return red.Routes(svc, metricsHandler), func() { trail.Close() }, nil

	case "instalaciones":
		var store instalaciones.Store
		if pool != nil {
			store = instalaciones.NewPGStore(pool)
		} else {
			store = instalaciones.NewMemStore()
		}
		retrier := instalaciones.NewRetrier(instalaciones.NewRedProvisioner(cfg.Services.Red))
		var inv instalaciones.Inventario
		if cfg.Services.Inventario != "" {
			inv = instalaciones.NewHTTPInventario(cfg.Services.Inventario)
		}
		svc := instalaciones.NewService(store, retrier, inv,
			cfg.Instalaciones.RequiredSKUs, cfg.Instalaciones.Tecnicos)
		return instalaciones.Routes(svc, metricsHandler), nil, nil

	case "clientes":
		var store clientes.Store
		var ledger *idempotency.Ledger
		if pool != nil {
			store = clientes.NewPGStore(pool)
			ledger = idempotency.New(idempotency.NewPGStore(pool, "idem_clientes"))
		} else {
			store = clientes.NewMemStore()
			ledger = idempotency.New(idempotency.NewMemStore())
		}
		return clientes.Routes(store, ledger, metricsHandler), nil, nil

	case "pagos":
		var store pagos.Store
		var ledger *idempotency.Ledger
		if pool != nil {
			store = pagos.NewPGStore(pool)
			ledger = idempotency.New(idempotency.NewPGStore(pool, "idem_pagos"))
		} else {
			store = pagos.NewMemStore()
			ledger = idempotency.New(idempotency.NewMemStore())
		}
		return pagos.Routes(store, ledger, cfg.Pagos.WebhookSecret, metricsHandler), nil, nil

	case "orquestador":
		clients := orquestador.NewClients(
			cfg.Services.Clientes,
			cfg.Services.Facturacion,
			cfg.Services.Pagos,
			cfg.Services.Red,
			cfg.Services.Whatsapp,
		)
		var c cache.Cache
		if cfg.Cache.Kind == "redis" {
			c = cacheredis.New(cfg.Cache.Redis.Addr, cfg.Cache.Redis.DB)
		} else {
			c = cachemem.New(cfg.MemoryTTL())
		}
		board := orquestador.NewStatusBoard(c, cfg.MemoryTTL())
		var smtp *orquestador.SMTPSender
		if cfg.Notificaciones.SMTP.Host != "" {
			smtp = &orquestador.SMTPSender{
				Host: cfg.Notificaciones.SMTP.Host,
				Port: cfg.Notificaciones.SMTP.Port,
				From: cfg.Notificaciones.SMTP.From,
				User: cfg.Notificaciones.SMTP.User,
				Pass: cfg.Notificaciones.SMTP.Pass,
			}
		}
		notifier := orquestador.NewNotifier(clients.Whatsapp, smtp)
		proxy, err := orquestador.NewRedProxy(cfg.Services.Red)
		if err != nil {
			return nil, nil, fmt.Errorf("proxy red: %w", err)
		}
		svc := orquestador.NewService(clients)
		return orquestador.Routes(svc, board, notifier, proxy, metricsHandler), nil, nil

	default:
		return nil, nil, fmt.Errorf("servicio desconocido: %s (válidos: clientes, orquestador, pagos, instalaciones, red)", nombre)
	}
}

// migrate aplica las migraciones embebidas en orden de nombre de archivo.
func migrate(ctx context.Context, dsn, action string, steps int) error {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("pgxpool: %w", err)
	}
	defer pool.Close()

	suffix := "_up.sql"
	if action == "down" {
		suffix = "_down.sql"
	} else if action != "up" {
		return fmt.Errorf("acción desconocida %q (up | down)", action)
	}

	files, err := fs.Glob(migrations.FS, "*"+suffix)
	if err != nil {
		return err
	}
	sort.Strings(files)
	if action == "down" {
		for i, j := 0, len(files)-1; i < j; i, j = i+1, j-1 {
			files[i], files[j] = files[j], files[i]
		}
	}
	if steps > 0 && steps < len(files) {
		files = files[:steps]
	}

	for _, f := range files {
		sql, err := fs.ReadFile(migrations.FS, f)
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}
		start := time.Now()
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("exec %s: %w", f, err)
		}
		fmt.Printf("OK %s (%s)\n", f, time.Since(start).Truncate(time.Millisecond))
	}
	fmt.Printf("%d migración(es) aplicadas\n", len(files))
	return nil
}
