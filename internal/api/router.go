package api

import (
	"fmt"
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/rs/cors"

	_ "github.com/beamdrop/beamdrop/docs"

	"github.com/beamdrop/beamdrop/internal/api/handlers"
	"github.com/beamdrop/beamdrop/internal/api/middleware"
	"github.com/beamdrop/beamdrop/internal/config"
	"github.com/beamdrop/beamdrop/internal/logger"
	"github.com/beamdrop/beamdrop/internal/transfer"
	"github.com/beamdrop/beamdrop/internal/ws"
)

func SetupRouter(h *handlers.Handler, hub *ws.Hub, svc *transfer.Service) http.Handler {
	mainMux := http.NewServeMux()
	c := cors.New(config.Envs.CorsConfig)

	// ---------- PUBLIC ROUTES ----------
	mainMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})

	mainMux.HandleFunc("/docs/", httpSwagger.WrapHandler)

	authMux := http.NewServeMux()
	authMux.HandleFunc("/sign-up", handlers.RegisterUser)
	authMux.HandleFunc("/login", handlers.LoginUser)
	authMux.HandleFunc("/google/login", handlers.HandleGoogleLogin)
	authMux.HandleFunc("/google/callback", handlers.HandleGoogleCallback)

	mainMux.Handle("/api/v1/auth/",
		http.StripPrefix("/api/v1/auth", authMux),
	)

	// ---------- PROTECTED ROUTES ----------
	protectedMux := http.NewServeMux()

	protectedMux.HandleFunc("POST /transfers", h.CreateTransfer)
	protectedMux.HandleFunc("GET /transfers/pending", h.PendingTransfers)
	protectedMux.HandleFunc("GET /transfers/{id}", h.GetTransfer)
	protectedMux.HandleFunc("PUT /transfers/{id}/status", h.UpdateStatus)
	protectedMux.HandleFunc("PUT /transfers/{id}/progress", h.UpdateProgress)
	protectedMux.HandleFunc("DELETE /transfers/{id}", h.CancelTransfer)
	protectedMux.HandleFunc("POST /transfers/{id}/signal", h.PostSignal)
	protectedMux.HandleFunc("GET /transfers/{id}/signal/{type}", h.FetchSignal)
	protectedMux.HandleFunc("POST /transfers/{id}/uploaded", h.ConfirmUpload)
	protectedMux.HandleFunc("GET /transfers/{id}/download", h.Download)

	protectedMux.Handle("GET /ws", ws.Handler(hub, svc, middleware.UserID))

	protectedMux.HandleFunc("/auth/logout", handlers.Logout)

	mainMux.Handle("/api/v1/",
		http.StripPrefix(
			"/api/v1",
			middleware.AuthMiddleware(protectedMux),
		),
	)

	logger.Log.Info().Msg("Router initialized")
	handler := c.Handler(mainMux)
	handler = middleware.Logger(handler)
	return handler
}
