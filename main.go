package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"inventory/internal/catalog"
	"inventory/internal/clock"
	intconfig "inventory/internal/config"
	intdb "inventory/internal/db"
	"inventory/internal/holdtoken"
	router "inventory/internal/http"
	h "inventory/internal/http/handlers"
	"inventory/internal/ledger"
	"inventory/internal/observability"
	"inventory/internal/observability/logging"
	telemetry "inventory/internal/observability/otel"
	"inventory/internal/repositories"
	"inventory/internal/services"
	"inventory/internal/worker"
)

const serviceName = "inventory"

func main() {
	env := intconfig.LoadEnv()
	if env.GinMode != "" {
		gin.SetMode(env.GinMode)
	}

	_, logCloser := logging.Setup(logging.Options{Service: serviceName, Env: env.AppEnv, File: env.LogFile})
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: serviceName,
		Environment: env.AppEnv,
		Endpoint:    env.OTLPEndpoint,
		Insecure:    env.OTLPInsecure,
		Headers:     env.OTLPHeaders,
	})
	if err != nil {
		log.Fatalf("Gagal inisialisasi tracing: %v", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	store, cat, err := openBackend(ctx, env)
	if err != nil {
		log.Fatalf("Gagal menyiapkan penyimpanan: %v", err)
	}
	defer intconfig.CloseDB()

	l := ledger.New(store)
	if n, err := catalog.Seed(ctx, cat, l); err != nil {
		log.Fatalf("Gagal seed blackout katalog: %v", err)
	} else if n > 0 {
		log.Printf("Blackout katalog diterapkan: %d tanggal", n)
	}

	metrics := observability.Inventory()
	clk := clock.NewSystem()
	holds := services.NewHoldService(store, cat, clk,
		services.WithDefaultTTL(env.HoldDefaultTTL),
		services.WithMaxTTL(env.HoldMaxTTL),
		services.WithExpiryRetryDelay(env.SweepRetry),
		services.WithMetrics(metrics),
	)
	inv := &h.Inventory{
		Availability: services.NewAvailabilityService(cat, l, metrics),
		Holds:        holds,
		Tokens:       holdtoken.NewIssuer(env.HoldTokenSecret, clk),
		Store:        store,
	}
	if inv.Tokens == nil {
		log.Println("HOLD_TOKEN_SECRET kosong, hold token dinonaktifkan")
	}

	r := router.NewRouter(env, inv)
	srv := &http.Server{
		Addr:              env.AppAddr,
		Handler:           otelhttp.NewHandler(r, serviceName),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	sweeper := worker.NewExpirySweeper(holds, env.SweepInterval, env.SweepBatch, metrics)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Server berjalan di http://localhost%s (backend=%s)", env.AppAddr, env.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("menjalankan server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Mematikan server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("Server berhenti dengan error: %v", err)
		return
	}
	log.Println("Server berhenti dengan aman.")
}

// openBackend picks the inventory store and the catalog. CATALOG_FILE wins over the
// resources table; the memory backend has no table and needs the file.
func openBackend(ctx context.Context, env intconfig.Env) (services.InventoryStore, catalog.Catalog, error) {
	var fileCatalog catalog.Catalog
	if env.CatalogFile != "" {
		static, err := catalog.LoadFile(env.CatalogFile)
		if err != nil {
			return nil, nil, err
		}
		fileCatalog = static
	}

	switch env.Backend {
	case intconfig.BackendMemory:
		if fileCatalog == nil {
			return nil, nil, errors.New("backend memory membutuhkan CATALOG_FILE")
		}
		log.Println("Memakai backend memory, data hilang saat restart")
		return repositories.NewMemoryInventory(), fileCatalog, nil
	default:
		db := intconfig.ConnectDB(env)
		if err := intdb.EnsureSchema(ctx, db); err != nil {
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		store := repositories.InventoryRepo{DB: db}
		if fileCatalog != nil {
			return store, fileCatalog, nil
		}
		return store, repositories.ResourceRepo{DB: db}, nil
	}
}
