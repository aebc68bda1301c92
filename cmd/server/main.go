package main

import (
	"github.com/eleven-am/consult-backend/internal/bootstrap"
)

// @title Consult API
// @version 1.0.0
// @description Expert consultation platform with realtime calling

// @BasePath /v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

// @securityDefinitions.apikey APIKeyAuth
// @in header
// @name X-API-Key

func main() {
	bootstrap.Run()
}
