// Package api exposes the ring engine over HTTP: a data-plane surface
// (PUT/GET on keys) and an admin surface (node join/leave, membership
// snapshot) gated by auth.RBACMiddleware.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"ringdht/auth"
	"ringdht/cache"
	"ringdht/cluster"
)

// Handlers wires the HTTP surface to a *cluster.Ring.
type Handlers struct {
	ring        *cluster.Ring
	authService auth.AuthServiceInterface
}

func NewHandlers(ring *cluster.Ring, authService auth.AuthServiceInterface) *Handlers {
	return &Handlers{ring: ring, authService: authService}
}

type keyValue struct {
	Value string `json:"value"`
}

// PutHandler stores a value under its two replica-holding nodes.
// PUT /keys/{key}
func (h *Handlers) PutHandler(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if key == "" {
		http.Error(w, "Key is required", http.StatusBadRequest)
		return
	}

	var kv keyValue
	if err := json.NewDecoder(r.Body).Decode(&kv); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	primary, secondary, err := h.ring.Put(r.Context(), key, kv.Value)
	if err != nil {
		writeRingError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"key":       key,
		"primary":   primary,
		"secondary": secondary,
	})
}

// GetHandler reads a value from its primary, failing over to its secondary.
// GET /keys/{key}
func (h *Handlers) GetHandler(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if key == "" {
		http.Error(w, "Key is required", http.StatusBadRequest)
		return
	}

	value, found, err := h.ring.Get(r.Context(), key)
	if err != nil {
		writeRingError(w, err)
		return
	}
	if !found {
		http.Error(w, "Key not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"key":   key,
		"value": value,
	})
}

type addNodeRequest struct {
	Name string `json:"name"`
	Host string `json:"host"`
	Port int    `json:"port"`
}

// AddNodeHandler joins a backing cache server to the ring.
// POST /admin/nodes
func (h *Handlers) AddNodeHandler(w http.ResponseWriter, r *http.Request) {
	var req addNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Host == "" || req.Port == 0 {
		http.Error(w, "name, host and port are required", http.StatusBadRequest)
		return
	}

	if err := h.ring.AddNode(r.Context(), req.Name, req.Host, req.Port); err != nil {
		writeRingError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "joined",
		"name":   req.Name,
	})
}

// RemoveNodeHandler removes a backing cache server from the ring.
// DELETE /admin/nodes/{name}
func (h *Handlers) RemoveNodeHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	if err := h.ring.RemoveNode(r.Context(), name); err != nil {
		writeRingError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "left",
		"name":   name,
	})
}

// DescribeHandler returns a snapshot of the live ring membership.
// GET /admin/describe
func (h *Handlers) DescribeHandler(w http.ResponseWriter, r *http.Request) {
	nodes := h.ring.Describe()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"size":  h.ring.Size(),
		"count": len(nodes),
		"nodes": nodes,
	})
}

// TokenHandler issues an admin JWT.
// POST /auth/token
func (h *Handlers) TokenHandler(w http.ResponseWriter, r *http.Request) {
	if h.authService == nil {
		http.Error(w, "Authentication is disabled", http.StatusServiceUnavailable)
		return
	}

	var req struct {
		UserID string   `json:"user_id"`
		Roles  []string `json:"roles"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if len(req.Roles) == 0 {
		req.Roles = []string{"read"}
	}

	token, err := h.authService.GenerateToken(req.UserID, req.Roles)
	if err != nil {
		http.Error(w, "Error generating token: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"token":      token,
		"token_type": "Bearer",
	})
}

// writeRingError maps a cluster/cache sentinel error to the matching HTTP
// status, logging anything unexpected as a server error.
func writeRingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cluster.ErrEmptyRing):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, cluster.ErrDuplicateName), errors.Is(err, cluster.ErrPortInUse):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, cluster.ErrUnknownName):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, cluster.ErrRingFull):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, cache.ErrTransport):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		log.Printf("unexpected ring error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
