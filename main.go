package main

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"

	"relaygate/global"
	"relaygate/logger"
	"relaygate/service/bus"
	"relaygate/service/gateway"
	"relaygate/service/storage"
	"relaygate/tools/safe"
)

func main() {
	cfg, err := global.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger.SetLevel(cfg.LogLevel)

	reg := gateway.NewRegistry(cfg.GatewayID)
	defer reg.Close()

	bridge, err := bus.Connect(bus.Config{URL: cfg.NatsURL, Name: cfg.GatewayID}, cfg.GatewayID)
	if err != nil {
		log.Fatalf("bus connect: %v", err)
	}
	defer func() { _ = bridge.Close() }()

	var presence gateway.PresenceStore
	if cfg.RedisAddr != "" {
		p, perr := storage.NewPresence(storage.Config{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			GatewayID: cfg.GatewayID,
			TTL:       cfg.PresenceTTL,
		})
		if perr != nil {
			logger.Warnf("[main] presence mirror disabled: %v", perr)
		} else {
			presence = p
			defer func() { _ = p.Close() }()
		}
	}

	srv := gateway.NewServer(reg, bridge, presence, cfg)

	if err := bridge.SubscribeAll(srv.DeliverFromBus); err != nil {
		log.Fatalf("bus subscribe: %v", err)
	}

	if cfg.LegacyConsumer {
		lc := gateway.NewLegacyConsumer(srv, 256)
		safe.Go(lc.Run)
		defer lc.Stop()
		logger.Warnf("[main] legacy in-process consumer enabled (deprecated)")
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/ws", srv.HandleWS)
	r.POST("/internal/publish", srv.HandleInternalPublish)
	r.GET("/healthz", srv.HandleHealth)

	addr := fmt.Sprintf("%s:%d", cfg.BindHost, cfg.BindPort)
	logger.Infof("[HTTP] gateway %s listening on %s", cfg.GatewayID, addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("HTTP server failed: %v", err)
	}
}
