package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"workspace-backbone/backend/internal/audit"
	auditrepo "workspace-backbone/backend/internal/audit/repository"
	"workspace-backbone/backend/internal/config"
	"workspace-backbone/backend/internal/db"
	devicerepo "workspace-backbone/backend/internal/device/repository"
	"workspace-backbone/backend/internal/filesign"
	identityservice "workspace-backbone/backend/internal/identity/service"
	membershiprepo "workspace-backbone/backend/internal/membership/repository"
	messagingrepo "workspace-backbone/backend/internal/messaging/repository"
	messagingservice "workspace-backbone/backend/internal/messaging/service"
	"workspace-backbone/backend/internal/realtime/backplane"
	"workspace-backbone/backend/internal/realtime/eventlog"
	"workspace-backbone/backend/internal/realtime/gateway"
	"workspace-backbone/backend/internal/security"
	"workspace-backbone/backend/internal/server"
	"workspace-backbone/backend/internal/session/authority"
	sessionrepo "workspace-backbone/backend/internal/session/repository"
	"workspace-backbone/backend/internal/telemetry/otel"
	userrepo "workspace-backbone/backend/internal/user/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "workspace-backbone")
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	privateKey, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		log.Fatalf("jwt private key: %v", err)
	}
	publicKey, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("jwt public key: %v", err)
	}
	tokens := security.NewTokenProvider(privateKey, publicKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())

	auditLogger := audit.NewLogger(auditrepo.NewPostgresStore(pool))
	sessions := authority.New(sessionrepo.NewPostgresRepository(pool), cfg.RefreshTTL())
	authSvc := identityservice.NewAuthService(
		userrepo.NewPostgresRepository(pool),
		membershiprepo.NewPostgresRepository(pool),
		devicerepo.NewPostgresRepository(pool),
		sessions,
		tokens,
		security.NewHasher(cfg.BcryptCost),
		auditLogger,
	)

	conversations := messagingrepo.NewPostgresConversations(pool)

	var (
		bp           *backplane.Redis
		hubBackplane gateway.Backplane
	)
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer client.Close()
		bp = backplane.New(client)
		hubBackplane = bp
	}
	hub := gateway.NewHub(eventlog.New(), conversations, tokens, hubBackplane)

	listenCtx, stopListen := context.WithCancel(ctx)
	defer stopListen()
	if bp != nil {
		go func() {
			if err := bp.Listen(listenCtx, hub); err != nil && listenCtx.Err() == nil {
				log.Printf("backplane listener stopped: %v", err)
			}
		}()
	}

	messaging := messagingservice.New(messagingrepo.NewPostgresMessages(pool), conversations, hub)

	var signer *filesign.Signer
	if cfg.StorageSigningSecret != "" {
		signer = filesign.New(cfg.StorageSigningSecret)
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      server.New(authSvc, messaging, conversations, membershiprepo.NewPostgresRepository(pool), hub, tokens, signer).Handler(),
		// No Read/WriteTimeout: websocket connections are long-lived.
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	stopListen()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
	log.Println("HTTP server stopped")
}
