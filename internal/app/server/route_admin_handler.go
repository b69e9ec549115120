package server

import (
	"encoding/json"
	"net"
	"net/http"

	"vigil/internal/api/dto"
	"vigil/internal/audit"
	"vigil/internal/auth"
	"vigil/internal/config"
	"vigil/internal/database"
	"vigil/internal/domain"
	"vigil/internal/geo"
	jobruntime "vigil/internal/jobs/runtime"
	"vigil/internal/support"

	"github.com/charmbracelet/log"
)

func checkLogin(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func registerOperator(w http.ResponseWriter, r *http.Request) {
	var credentials dto.Credentials
	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if !auth.IsValidEmail(credentials.Email) {
		writeError(w, "Invalid email format", http.StatusBadRequest)
		return
	}

	if len(credentials.Password) < 8 {
		writeError(w, "Password must be at least 8 characters long", http.StatusBadRequest)
		return
	}

	hashedPassword, err := support.HashPassword(credentials.Password)
	if err != nil {
		writeError(w, "Failed to hash password", http.StatusInternalServerError)
		return
	}

	if _, err := database.GetOperatorByEmail(credentials.Email); err == nil {
		writeError(w, "Email already in use", http.StatusConflict)
		return
	}

	operator := domain.Operator{
		Email:    credentials.Email,
		Password: hashedPassword,
		Role:     "viewer",
	}

	// The first account becomes the admin.
	hasOperators, err := database.HasOperators()
	if err != nil {
		writeError(w, "Failed to query database", http.StatusInternalServerError)
		return
	}
	if !hasOperators {
		operator.Role = "admin"
	}

	if err := database.CreateOperator(&operator); err != nil {
		writeError(w, "Failed to create operator", http.StatusInternalServerError)
		return
	}

	token, err := auth.GenerateJWT(operator.ID, operator.Role)
	if err != nil {
		writeError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"token": token, "role": operator.Role})
}

func loginOperator(w http.ResponseWriter, r *http.Request) {
	var credentials dto.Credentials
	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	operator, err := database.GetOperatorByEmail(credentials.Email)
	if err != nil {
		writeError(w, "Operator not found", http.StatusUnauthorized)
		return
	}

	if !support.CheckPasswordHash(credentials.Password, operator.Password) {
		writeError(w, "Invalid password", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateJWT(operator.ID, operator.Role)
	if err != nil {
		writeError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token, "role": operator.Role})
}

func getTrustScores(w http.ResponseWriter, r *http.Request) {
	scores, err := database.GetTrustScores()
	if err != nil {
		log.Error("Failed to load trust scores", "error", err)
		writeError(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

func getSensors(w http.ResponseWriter, r *http.Request) {
	sensors, err := database.GetAllSensorNodes()
	if err != nil {
		log.Error("Failed to load sensors", "error", err)
		writeError(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sensors)
}

func getRecentBlocks(w http.ResponseWriter, r *http.Request) {
	events, err := database.GetRecentBlockEvents(100)
	if err != nil {
		log.Error("Failed to load block events", "error", err)
		writeError(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	blocks := make([]dto.BlockInfo, 0, len(events))
	for _, event := range events {
		blocks = append(blocks, dto.BlockInfo{
			IP:        event.IP,
			Reason:    event.Reason,
			BlockedAt: event.BlockedAt,
			ExpiresAt: event.ExpiresAt,
			Country:   geo.Country(event.IP),
		})
	}

	writeJSON(w, http.StatusOK, blocks)
}

func getActiveInstances(w http.ResponseWriter, r *http.Request) {
	client, err := support.GetRedisClient()
	if err != nil {
		log.Error("Failed to reach redis for instance count", "error", err)
		writeError(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	count, err := jobruntime.CountActiveInstances(r.Context(), client)
	if err != nil {
		log.Error("Failed to count active instances", "error", err)
		writeError(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"active_instances": count})
}

func getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, config.GetConfig())
}

func saveSettings(w http.ResponseWriter, r *http.Request) {
	var newConfig config.Config
	if err := json.NewDecoder(r.Body).Decode(&newConfig); err != nil {
		log.Error("Error decoding request body:", err)
		writeError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if newConfig.Detection.BlockThreshold < 0 {
		writeError(w, "block_threshold must not be negative", http.StatusBadRequest)
		return
	}

	for _, entry := range newConfig.Detection.Whitelist {
		if net.ParseIP(entry) == nil {
			writeError(w, "whitelist entry is not a valid address: "+entry, http.StatusBadRequest)
			return
		}
	}

	config.SetConfig(newConfig)

	if operatorID, err := auth.GetOperatorIDFromRequest(r); err == nil {
		audit.ConfigChanged(operatorID)
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Configuration updated successfully"})
}
