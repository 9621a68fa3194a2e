package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lifeline/internal/config"
	"lifeline/internal/handlers"
	"lifeline/internal/middleware"
	"lifeline/internal/realtime"
	"lifeline/internal/repositories/mongodb"
	"lifeline/internal/services"
	"lifeline/internal/utils"
	"lifeline/pkg/cache"
	"lifeline/pkg/database"
	"lifeline/pkg/logger"
	"lifeline/pkg/maps"
	"lifeline/pkg/push"
	"lifeline/pkg/sms"
	"lifeline/routes"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(&logger.Config{
		Level:  logger.LogLevel(cfg.App.LogLevel),
		Format: cfg.App.LogFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Infof("Starting %s %s (%s)", cfg.App.Name, cfg.App.Version, cfg.App.Environment)

	db, err := database.NewMongoDB(&database.DatabaseConfig{
		URI:            cfg.Database.URI,
		Database:       cfg.Database.Database,
		MaxPoolSize:    cfg.Database.MaxPoolSize,
		MinPoolSize:    cfg.Database.MinPoolSize,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		SocketTimeout:  cfg.Database.SocketTimeout,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	defer db.Close()

	redisCache, err := cache.NewRedisCache(&cache.RedisConfig{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisCache.Close()

	requestRepo := mongodb.NewRequestRepository(db.Database, redisCache)
	ambulanceRepo := mongodb.NewAmbulanceRepository(db.Database, redisCache)

	routeProvider := buildRouteProvider(cfg, log)
	smsProvider := buildSMSProvider(cfg, log)
	pushProvider := buildPushProvider(cfg, log)

	realtime.ConfigureUpgrader(
		cfg.WebSocket.ReadBufferSize,
		cfg.WebSocket.WriteBufferSize,
		cfg.WebSocket.HandshakeTimeout,
		cfg.WebSocket.AllowedOrigins,
	)
	broker := realtime.NewBroker(log)
	hub := realtime.NewHub(broker, log)
	go hub.Run()

	notifications := services.NewNotificationService(smsProvider, pushProvider, cfg.SMS.TwilioFromNumber, log)
	dispatchService := services.NewDispatchService(requestRepo, ambulanceRepo, broker, notifications, log)
	ambulanceService := services.NewAmbulanceService(ambulanceRepo, log)
	monitorService := services.NewMonitorService(broker, requestRepo, routeProvider, log)
	defer monitorService.Close()

	dispatchHandler := handlers.NewDispatchHandler(dispatchService, log)
	ambulanceHandler := handlers.NewAmbulanceHandler(ambulanceService, log)
	trackingHandler := handlers.NewTrackingHandler(hub, dispatchService, monitorService, log)

	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.LoggingMiddleware(log))

	router.GET("/health", func(c *gin.Context) {
		utils.SuccessResponse(c, "OK", gin.H{
			"name":    cfg.App.Name,
			"version": cfg.App.Version,
		})
	})

	api := router.Group("/api/v1")
	routes.SetupDispatchRoutes(api, dispatchHandler, cfg.Security.JWTSecret)
	routes.SetupAmbulanceRoutes(api, ambulanceHandler, cfg.Security.JWTSecret)
	routes.SetupTrackingRoutes(api, trackingHandler, cfg.Security.JWTSecret)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port),
		Handler: router,
	}

	go func() {
		log.Infof("Listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Forced shutdown")
	}
}

func buildRouteProvider(cfg *config.Config, log *logger.Logger) maps.RouteProvider {
	switch cfg.Maps.Provider {
	case "google":
		provider, err := maps.NewGoogleMapsProvider(cfg.Maps.GoogleAPIKey)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize Google Maps provider")
		}
		return provider
	default:
		return maps.NewOSRMProvider(cfg.Maps.OSRMBaseURL)
	}
}

func buildSMSProvider(cfg *config.Config, log *logger.Logger) sms.SMSProvider {
	switch cfg.SMS.Provider {
	case "twilio":
		return sms.NewTwilioProvider(cfg.SMS.TwilioAccountSID, cfg.SMS.TwilioAuthToken, cfg.SMS.TwilioFromNumber)
	case "aws_sns":
		provider, err := sms.NewAWSSNSProvider(cfg.SMS.AWSRegion)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize SNS provider")
		}
		return provider
	default:
		log.Warn("SMS notifications disabled")
		return nil
	}
}

func buildPushProvider(cfg *config.Config, log *logger.Logger) push.PushProvider {
	switch cfg.Push.Provider {
	case "fcm":
		provider, err := push.NewFCMProvider(cfg.Push.FCMCredentialsFile)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize FCM provider")
		}
		return provider
	default:
		log.Warn("Push notifications disabled")
		return nil
	}
}
