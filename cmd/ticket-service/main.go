package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clinicq/ticket-service/internal/config"
	"clinicq/ticket-service/internal/httpapi"
	"clinicq/ticket-service/internal/queue"
	"clinicq/ticket-service/internal/store/postgres"
	"clinicq/ticket-service/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()

	shutdownTelemetry := telemetry.Setup("ticket-service", cfg.OTLPEndpoint)

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	st := postgres.NewStore(pool)
	engine := queue.NewEngine(st, st, queue.Options{
		AvgServiceMinutes: cfg.AvgServiceMinutes,
		CallNextRetries:   cfg.CallNextRetries,
	})
	handler := httpapi.NewHandler(engine)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:      cfg.RateLimitPerMinute,
		IPBurst:          cfg.RateLimitBurst,
		ServicePerMinute: cfg.ServiceRateLimitPerMinute,
		ServiceBurst:     cfg.ServiceRateLimitBurst,
	})

	routes := otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(handler.Routes())), "ticket-service")

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      routes,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("ticket-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	if err := shutdownTelemetry(ctx); err != nil {
		log.Printf("telemetry shutdown error: %v", err)
	}
}
