package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORSMiddleware lets the listed browser origins call the API. Preflight
// requests are answered here; everything else is passed on.
func CORSMiddleware(origins []string, next http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:       origins,
		AllowedMethods:       []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:       []string{"Content-Type", "Authorization"},
		AllowCredentials:     true,
		OptionsSuccessStatus: http.StatusNoContent,
	}).Handler(next)
}
