package main

import (
	"log"

	"chatdesk-backend/internal/api"
	"chatdesk-backend/internal/api/router"
	"chatdesk-backend/internal/database"
	"chatdesk-backend/internal/env"
	"chatdesk-backend/internal/queue"
	"chatdesk-backend/internal/websocket"
	"chatdesk-backend/pkg/logger"

	"github.com/go-redis/redis/v8"
)

func main() {
	env.MustValidate()

	if l, err := logger.New(env.GetOrDefault(env.LogLevel, "info")); err == nil {
		logger.SetGlobal(l)
	}

	queueManager := queue.NewDispatchQueueManager(10, 10)

	db, err := database.NewDatabase()
	if err != nil {
		log.Fatalf("db init failed: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     env.Get(env.NotifyRedisURL),
		Password: env.Get(env.NotifyRedisPass),
		DB:       0,
	})

	hub := websocket.NewHub()
	go hub.Run()
	handler := websocket.NewHandler(hub, redisClient)

	server := api.NewAPIServer(
		":83",
		queueManager,
		db,
		handler,
		router.UtilsRoutes("/api/ws/v1"),
		router.WebsocketRoutes("/api/ws/v1"),
	)

	handler.SubscribeToRedisChannels()

	server.Run()
}
