package main

import (
	"log"

	"github.com/fasthttp/router"
	"github.com/joho/godotenv"
	"github.com/valyala/fasthttp"

	"schoolsight/internal/config"
	"schoolsight/internal/db"
	"schoolsight/internal/http/handlers"
	appmw "schoolsight/internal/http/middleware"
	"schoolsight/internal/pipeline"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	sqlDB, err := db.Connect(cfg)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	pipeline.InitMetrics()
	appmw.InitRequestMetrics()

	runner := pipeline.New(sqlDB, cfg)
	pipeline.StartPipelineWorker(runner, cfg.PipelineIntervalHours)
	db.StartRetentionWorker(sqlDB, cfg.RunLogRetentionDays)

	r := router.New()

	// Global middleware chain: request logger, then request metrics, then router
	handler := handlers.RequestLogger(appmw.RequestMetrics(r.Handler))

	r.GET("/healthz", handlers.Healthz(sqlDB))
	r.GET("/metrics", handlers.PrometheusMetrics())

	r.GET("/v1/state/overview", handlers.StateOverview(sqlDB))
	r.GET("/v1/state/trends", handlers.StateTrends(sqlDB))
	r.GET("/v1/state/forecast", handlers.StateForecast(sqlDB))
	r.GET("/v1/state/years", handlers.StateYears(sqlDB))

	r.GET("/v1/districts", handlers.DistrictList(sqlDB))
	r.GET("/v1/districts/{district}/compliance", handlers.DistrictCompliance(sqlDB))
	r.GET("/v1/districts/{district}/priority", handlers.DistrictPriority(sqlDB))
	r.GET("/v1/districts/{district}/blocks", handlers.DistrictBlocks(sqlDB))

	r.GET("/v1/schools/search", handlers.SchoolSearch(sqlDB))
	r.GET("/v1/schools/{id}/overview", handlers.SchoolOverview(sqlDB))
	r.GET("/v1/schools/{id}/history", handlers.SchoolHistory(sqlDB))
	r.GET("/v1/schools/{id}/forecast", handlers.SchoolForecast(sqlDB))

	r.POST("/v1/proposals", handlers.SubmitProposal(sqlDB))
	r.GET("/v1/proposals/school/{id}", handlers.SchoolProposals(sqlDB))

	r.POST("/v1/budget/simulate", handlers.SimulateBudget(sqlDB, cfg))
	r.POST("/v1/pipeline/run", handlers.TriggerPipeline(runner, sqlDB))
	r.POST("/v1/facts", handlers.IngestFacts(sqlDB))

	log.Printf("schoolsight listening on %s", cfg.ListenAddr)
	if err := fasthttp.ListenAndServe(cfg.ListenAddr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
