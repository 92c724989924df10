// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package master

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"smarthome/internal/handler"
	"smarthome/internal/logger"
	"smarthome/internal/naming"
	"smarthome/internal/payload"
	"smarthome/internal/permission"
	"smarthome/internal/store"
)

// APIStore is the part of the store exposed through the admin API
type APIStore interface {
	PermissionStore
	CatalogueSource
	Grants(device naming.DeviceID) ([]store.Grant, error)
}

// DeviceLister reports the devices currently connected to the master
type DeviceLister interface {
	ConnectedDevices() []naming.DeviceID
}

// APIServer provides the HTTP admin endpoints of the master
type APIServer struct {
	identity naming.Identity
	store    APIStore
	gate     *handler.PermissionGate
	devices  DeviceLister
	jwt      *JWTService
	server   *http.Server
	logger   zerolog.Logger
}

// APIResponse is the body of every API response
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// PermissionRequest grants or revokes a permission
type PermissionRequest struct {
	User       naming.DeviceID          `json:"user"`
	Permission permission.Permission    `json:"permission"`
	ModuleName string                   `json:"module_name,omitempty"`
	Action     payload.PermissionAction `json:"action"`
}

// NewAPIServer creates a new admin API server listening on listen
func NewAPIServer(listen string, identity naming.Identity, store APIStore, devices DeviceLister, jwt *JWTService) *APIServer {
	s := &APIServer{
		identity: identity,
		store:    store,
		gate:     handler.NewPermissionGate(identity, store),
		devices:  devices,
		jwt:      jwt,
		logger:   logger.GetLogger("admin_api"),
	}

	s.server = &http.Server{
		Addr:              listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the API routes
func (s *APIServer) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(requestID)

	router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.Use(s.jwt.RequireAuth)
	api.HandleFunc("/devices", s.handleDevices).Methods("GET")
	api.HandleFunc("/modules", s.handleModules).Methods("GET")
	api.HandleFunc("/permissions/{device}", s.handleGrants).Methods("GET")
	api.HandleFunc("/permissions", s.handlePermission).Methods("POST")

	return router
}

// requestID tags every request and its response with an id
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

// Start starts the API server
func (s *APIServer) Start() error {
	s.logger.Info().
		Str("address", s.server.Addr).
		Msg("Starting admin API server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Admin API server error")
		}
	}()

	return nil
}

// Stop stops the API server
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping admin API server")
	return s.server.Shutdown(ctx)
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendSuccess(w, "Master is healthy", map[string]interface{}{
		"status":    "healthy",
		"master_id": s.identity.OwnID(),
		"connected": len(s.devices.ConnectedDevices()),
	})
}

func (s *APIServer) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.devices.ConnectedDevices()
	s.sendSuccess(w, "Connected devices retrieved successfully", map[string]interface{}{
		"devices": devices,
		"count":   len(devices),
	})
}

func (s *APIServer) handleModules(w http.ResponseWriter, r *http.Request) {
	catalogue, err := s.store.Catalogue()
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "Failed to load modules", err)
		return
	}
	s.sendSuccess(w, "Modules retrieved successfully", catalogue)
}

func (s *APIServer) handleGrants(w http.ResponseWriter, r *http.Request) {
	device := naming.DeviceID(mux.Vars(r)["device"])

	grants, err := s.store.Grants(device)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "Failed to list permissions", err)
		return
	}
	s.sendSuccess(w, "Permissions retrieved successfully", map[string]interface{}{
		"device": device,
		"grants": grants,
	})
}

func (s *APIServer) handlePermission(w http.ResponseWriter, r *http.Request) {
	caller, _ := DeviceFromContext(r.Context())
	if !s.gate.HasPermission(caller, permission.ModifyUserPermission, "") {
		s.sendError(w, http.StatusForbidden, "Missing permission "+permission.ModifyUserPermission.String(), nil)
		return
	}

	var req PermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid JSON format", err)
		return
	}

	change := &payload.SetPermissionPayload{
		User:       req.User,
		Permission: req.Permission,
		ModuleName: req.ModuleName,
		Action:     req.Action,
	}
	if err := validatePermissionChange(change); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid permission change", err)
		return
	}

	var err error
	if change.Action == payload.Grant {
		err = s.store.Grant(change.User, change.Permission, change.ModuleName)
	} else {
		err = s.store.Revoke(change.User, change.Permission, change.ModuleName)
	}
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "Failed to change permission", err)
		return
	}

	s.logger.Info().
		Str("by", caller.String()).
		Str("user", change.User.String()).
		Str("permission", change.Permission.String()).
		Str("action", string(change.Action)).
		Msg("Permission changed through admin API")

	s.sendSuccess(w, "Permission updated successfully", change)
}

func (s *APIServer) sendSuccess(w http.ResponseWriter, message string, data interface{}) {
	s.send(w, http.StatusOK, APIResponse{Success: true, Message: message, Data: data})
}

func (s *APIServer) sendError(w http.ResponseWriter, statusCode int, message string, err error) {
	response := APIResponse{
		Success: false,
		Message: message,
	}

	if err != nil {
		response.Error = err.Error()
		s.logger.Error().Err(err).Str("message", message).Msg("API error")
	} else {
		s.logger.Warn().Str("message", message).Msg("API client error")
	}

	s.send(w, statusCode, response)
}

func (s *APIServer) send(w http.ResponseWriter, statusCode int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write API response")
	}
}
