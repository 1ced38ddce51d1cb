package middleware

import (
	"github.com/go-chi/cors"
)

// CORS returns the cors options for the owner dashboard origins. A "*"
// origin disables credentials, which browsers reject alongside a wildcard.
// Callers install the handler only when origins are configured, since an
// empty list makes go-chi/cors allow every origin.
func CORS(allowedOrigins []string) cors.Options {
	allowCreds := len(allowedOrigins) > 0
	for _, o := range allowedOrigins {
		if o == "*" {
			allowCreds = false
			break
		}
	}

	return cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader, "Retry-After"},
		AllowCredentials: allowCreds,
		MaxAge:           300,
	}
}
