package main

import (
	"log"
	"strconv"

	"chatdesk-backend/internal/api"
	"chatdesk-backend/internal/api/router"
	"chatdesk-backend/internal/database"
	"chatdesk-backend/internal/env"
	"chatdesk-backend/internal/queue"
	"chatdesk-backend/pkg/logger"
)

func main() {
	env.MustValidate()

	if l, err := logger.New(env.GetOrDefault(env.LogLevel, "info")); err == nil {
		logger.SetGlobal(l)
	}

	workers, err := strconv.Atoi(env.GetOrDefault(env.DispatchWorkers, "10"))
	if err != nil || workers <= 0 {
		workers = 10
	}
	queueManager := queue.NewDispatchQueueManager(100, workers)

	db, err := database.NewDatabase()
	if err != nil {
		log.Fatalf("db init failed: %v", err)
	}

	server := api.NewAPIServer(
		":82",
		queueManager,
		db,
		nil,
		router.UtilsRoutes("/api/events/v1"),
		router.EventRoutes("/api/events/v1"),
	)

	server.Run()
}
