package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"vasp-link.backend/internal/config"
	"vasp-link.backend/internal/infrastructure/blockchain"
	"vasp-link.backend/internal/infrastructure/jobs"
	"vasp-link.backend/internal/infrastructure/repositories"
	"vasp-link.backend/internal/interfaces/http/handlers"
	"vasp-link.backend/internal/interfaces/http/middleware"
	"vasp-link.backend/internal/usecases"
	"vasp-link.backend/pkg/addr"
	"vasp-link.backend/pkg/logger"
)

var (
	loadDotenv = godotenv.Load
	loadCfg    = config.Load
	initLog    = logger.Init
	dialChain  = blockchain.Dial
	runServer  = func(r *gin.Engine, port string) error { return r.Run(":" + port) }
)

func main() {
	if err := runMainProcess(); err != nil {
		log.Fatal(err)
	}
}

func runMainProcess() error {
	// Load .env file
	if err := loadDotenv(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := loadCfg()

	// Initialize Logger
	initLog(cfg.Server.Env)
	logger.Info(context.Background(), "Logger initialized", zap.String("env", cfg.Server.Env))

	// Set Gin mode
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	parentAddress, err := addr.AccountAddressFromHex(cfg.VASP.AccountAddress)
	if err != nil {
		return fmt.Errorf("invalid VASP_ACCOUNT_ADDRESS: %w", err)
	}
	complianceKey, err := decodeComplianceKey(cfg.VASP.ComplianceKey)
	if err != nil {
		return fmt.Errorf("invalid VASP_COMPLIANCE_KEY: %w", err)
	}

	// Connect to the chain
	chainClient, err := dialChain(cfg.Chain.RPCURL)
	if err != nil {
		return fmt.Errorf("failed to connect to chain rpc: %w", err)
	}
	defer chainClient.Close()
	logger.Info(context.Background(), "Chain RPC connected", zap.String("url", cfg.Chain.RPCURL))

	// Initialize repositories
	recordRepo := repositories.NewOffchainRecordRepository()

	// Initialize usecases
	offchainClient, err := usecases.NewOffchainClient(parentAddress, chainClient, cfg.VASP.HRP)
	if err != nil {
		return fmt.Errorf("failed to initialize offchain client: %w", err)
	}
	engine := usecases.NewOffchainEngine(offchainClient, recordRepo, complianceKey)
	wallet := usecases.NewWalletUsecase(cfg.VASP.Name, &blockchain.LocalAccount{
		Address:       parentAddress,
		ComplianceKey: complianceKey,
	}, cfg.VASP.HRP, chainClient, engine)
	engine.SetDispatcher(wallet)

	// Initialize handlers
	commandHandler := handlers.NewCommandHandler(engine)

	// Start background worker
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker := jobs.NewBackgroundWorker(engine, cfg.Worker.Interval)
	go worker.Start(ctx)

	// Initialize router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggerMiddleware())

	registerHealthRoute(r)
	registerMetricsRoute(r)
	registerAPIV1Routes(r, routeDeps{
		commandHandler: commandHandler,
	})

	// Graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info(context.Background(), "Shutting down server")
		worker.Stop()
		cancel()
	}()

	logger.Info(context.Background(), "Off-chain service starting",
		zap.String("vasp", cfg.VASP.Name),
		zap.String("port", cfg.Server.Port))

	if err := runServer(r, cfg.Server.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// decodeComplianceKey parses a hex-encoded Ed25519 private key, accepting
// either the 64-byte private key or the 32-byte seed.
func decodeComplianceKey(s string) (ed25519.PrivateKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	switch len(raw) {
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	}
	return nil, fmt.Errorf("key must be %d or %d bytes, got %d", ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
}
