package api

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"parcelhub/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"PORT":                   os.Getenv("PORT"),
			"AUTH_MODE":              os.Getenv("AUTH_MODE"),
			"RECONCILER_INTERVAL_SEC": os.Getenv("RECONCILER_INTERVAL_SEC"),
			"RECONCILER_BATCH_SIZE":   os.Getenv("RECONCILER_BATCH_SIZE"),
			"DUPLICATE_WINDOW_HOURS":  os.Getenv("DUPLICATE_WINDOW_HOURS"),
			"WEBHOOK_MAX_ATTEMPTS":    os.Getenv("WEBHOOK_MAX_ATTEMPTS"),
			"HAS_ENCRYPTION_SECRET":   os.Getenv("ENCRYPTION_SECRET") != "",
			"HAS_DATABASE_URL":        os.Getenv("DATABASE_URL") != "",
			"HAS_REDIS_URL":           os.Getenv("REDIS_URL") != "",
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}
