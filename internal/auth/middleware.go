package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"vigil/internal/support"
)

// SensorAuthHeader carries the shared ingestion secret sensors present on
// every alert and heartbeat.
const SensorAuthHeader = "X-NIDS-Auth"

func IsAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := extractClaims(r)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		if claims["role"] != "admin" {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := extractClaims(r); err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSensorKey guards the ingestion endpoints with the shared sensor
// secret. The comparison is constant-time so the secret cannot be probed
// byte by byte.
func RequireSensorKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		expected := support.GetEnv("SENSOR_API_KEY", "")
		if expected == "" {
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
			return
		}

		presented := r.Header.Get(SensorAuthHeader)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func GetOperatorIDFromRequest(r *http.Request) (uint, error) {
	claims, err := extractClaims(r)
	if err != nil {
		return 0, err
	}

	// JWT numbers are parsed as float64 by default
	operatorID, ok := claims["operator_id"].(float64)
	if !ok {
		return 0, errors.New("invalid operator ID in token")
	}

	return uint(operatorID), nil
}

func extractClaims(r *http.Request) (map[string]interface{}, error) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, errors.New("missing or malformed Authorization header")
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	return ValidateJWT(token)
}

func IsValidEmail(email string) bool {
	re := regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	return re.MatchString(email)
}
