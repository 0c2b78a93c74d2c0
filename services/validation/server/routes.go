// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// NewRouter builds the gin engine with all validation routes.
//
// Endpoints:
//
//	POST /v1/observations - Record a quality observation
//	POST /v1/baselines - Establish a baseline from history
//	GET  /v1/baselines - List baselines (subject_id, status, limit)
//	POST /v1/regressions/detect - Check a value against the baseline
//	GET  /v1/alerts - List alerts (level, limit)
//	POST /v1/abtests - Set up an A/B test
//	POST /v1/abtests/:id/observations - Add a group observation
//	POST /v1/abtests/:id/significance - Run the significance test
//	POST /v1/decisions/validate - Validate a proposed change
//	GET  /v1/decisions - List recent decisions (limit)
//	POST /v1/validations - Run the full validation workflow
//	GET  /v1/validations/:id - Fetch a retained run
//	GET  /healthz - Liveness check
//	GET  /metrics - Prometheus scrape endpoint
func NewRouter(handlers *Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("validation-service"))

	v1 := router.Group("/v1")
	{
		v1.POST("/observations", handlers.HandleRecordObservation)

		v1.POST("/baselines", handlers.HandleEstablishBaseline)
		v1.GET("/baselines", handlers.HandleListBaselines)

		v1.POST("/regressions/detect", handlers.HandleDetectRegression)
		v1.GET("/alerts", handlers.HandleListAlerts)

		v1.POST("/abtests", handlers.HandleCreateABTest)
		v1.POST("/abtests/:id/observations", handlers.HandleAddABObservation)
		v1.POST("/abtests/:id/significance", handlers.HandleABSignificance)

		v1.POST("/decisions/validate", handlers.HandleValidateChange)
		v1.GET("/decisions", handlers.HandleListDecisions)

		v1.POST("/validations", handlers.HandleRunValidation)
		v1.GET("/validations/:id", handlers.HandleGetValidation)
	}

	router.GET("/healthz", handlers.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
