package apitest

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// RespondWithJSON writes a JSON response
func RespondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			log.Error().Err(err).Msg("Failed to encode JSON response")
		}
	}
}

// RespondWithError writes an error in the control plane's {"detail": ...} form
func RespondWithError(w http.ResponseWriter, statusCode int, detail string) {
	RespondWithJSON(w, statusCode, map[string]string{"detail": detail})
}
