package auth

import (
	"crypto/subtle"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"lanbox/internal/config"
)

// Guard rejects any request whose X-API-Key header does not match the
// configured secret. Rejected requests get 401 {"error":"unauthorized"}
// and never reach next.
func Guard(cfg config.Config, next http.Handler) http.Handler {
	valid := KeyCheck(cfg)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(config.APIKeyHeader)
		if key == "" || !valid(key) {
			deny(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// KeyCheck returns the comparison used by Guard: bcrypt when
// cfg.APIKeyBcrypt is set, otherwise an exact constant-time compare.
func KeyCheck(cfg config.Config) func(key string) bool {
	if cfg.APIKeyBcrypt != "" {
		hash := []byte(cfg.APIKeyBcrypt)
		return func(key string) bool {
			return bcrypt.CompareHashAndPassword(hash, []byte(key)) == nil
		}
	}
	want := []byte(cfg.APIKey)
	return func(key string) bool {
		return subtle.ConstantTimeCompare([]byte(key), want) == 1
	}
}

// HashKey produces a value suitable for API_KEY_BCRYPT.
func HashKey(key string, cost int) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func deny(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
}
