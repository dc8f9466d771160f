package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	evaluationHttp "experiment-stats-service/internal/evaluation/adapters/http/fiber"
	evaluationRepoPg "experiment-stats-service/internal/evaluation/adapters/postgres"
	evaluationUsecase "experiment-stats-service/internal/evaluation/core/usecase"

	ingestionHttp "experiment-stats-service/internal/ingestion/adapters/http/fiber"
	ingestionRepoPg "experiment-stats-service/internal/ingestion/adapters/postgres"
	ingestionUsecase "experiment-stats-service/internal/ingestion/core/usecase"

	"github.com/gofiber/fiber/v2"
	_ "github.com/lib/pq"
	fiberSwagger "github.com/swaggo/fiber-swagger"
)

func main() {
	// Config
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is not set")
	}
	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":8080"
	}

	// DB connection
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("failed to open postgres: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		log.Fatalf("failed to ping postgres: %v", err)
	}

	// Adapter-level DB wrappers
	evaluationDB := evaluationRepoPg.NewSQLDB(db)
	ingestionDB := ingestionRepoPg.NewSQLDB(db)

	// Repositories
	goalsRepository := evaluationRepoPg.NewGoalsRepository(evaluationDB)
	goalAggregateRepository := ingestionRepoPg.NewGoalAggregateRepository(ingestionDB)

	// Usecases
	evaluateUC := evaluationUsecase.NewEvaluateExperimentUseCase(goalsRepository)
	sampleSizeUC := evaluationUsecase.NewCalculateSampleSizeUseCase()
	storeGoalAggregateUC := ingestionUsecase.NewStoreGoalAggregateUseCase(goalAggregateRepository)

	// HTTP (Fiber) app + handlers
	app := fiber.New()

	// evaluation endpoints
	evaluationHandler := evaluationHttp.NewEvaluationHandler(evaluateUC, sampleSizeUC)
	app.Post("/evaluate", evaluationHandler.Evaluate)
	app.Post("/sample-size-calculation", evaluationHandler.CalculateSampleSize)

	// ingestion endpoints
	goalAggregateHandler := ingestionHttp.NewGoalAggregateHandler(storeGoalAggregateUC)
	app.Post("/goals", goalAggregateHandler.StoreGoalAggregate)
	app.Post("/goals/bulk", goalAggregateHandler.BulkStoreGoalAggregates)

	// Swagger
	app.Get("/docs/*", fiberSwagger.WrapHandler)

	// Graceful shutdown
	go func() {
		if err := app.Listen(addr); err != nil {
			log.Printf("fiber stopped: %v", err)
		}
	}()

	log.Printf("server started on %s", addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit

	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("fiber shutdown error: %v", err)
	}

	log.Println("server exiting")
}
