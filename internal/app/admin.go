package app

import (
	"encoding/json"
	"errors"
	"net/http"
)

var errMissingIdentity = errors.New("identity query parameter is required")

// registerAdmin mounts the operational endpoints: listing and reaping avatar
// sessions left over from crashed conversations, and listing, ending and
// minting tokens for video rooms.
func (a *App) registerAdmin(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/avatar/sessions", a.handleListAvatarSessions)
	mux.HandleFunc("DELETE /v1/avatar/sessions/{id}", a.handleCloseAvatarSession)

	if a.providers.Room == nil {
		return
	}
	mux.HandleFunc("GET /v1/rooms", a.handleListRooms)
	mux.HandleFunc("POST /v1/rooms/{sid}/end", a.handleEndRoom)
	mux.HandleFunc("POST /v1/rooms/{name}/token", a.handleRoomToken)
}

func (a *App) handleListAvatarSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := a.providers.Avatar.ListSessions(r.Context())
	if err != nil {
		a.metrics.RecordProviderError(r.Context(), "avatar", "list_sessions")
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (a *App) handleCloseAvatarSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.providers.Avatar.CloseSession(r.Context(), id); err != nil {
		a.metrics.RecordProviderError(r.Context(), "avatar", "close_session")
		writeError(w, http.StatusBadGateway, err)
		return
	}
	a.log.Info("avatar session reaped", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := a.providers.Room.ListRooms(r.Context())
	if err != nil {
		a.metrics.RecordProviderError(r.Context(), "room", "list_rooms")
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

func (a *App) handleEndRoom(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("sid")
	if err := a.providers.Room.EndRoom(r.Context(), sid); err != nil {
		a.metrics.RecordProviderError(r.Context(), "room", "end_room")
		writeError(w, http.StatusBadGateway, err)
		return
	}
	a.log.Info("room ended", "room_sid", sid)
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleRoomToken(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	identity := r.URL.Query().Get("identity")
	if identity == "" {
		writeError(w, http.StatusBadRequest, errMissingIdentity)
		return
	}

	rm, err := a.providers.Room.EnsureRoom(r.Context(), name)
	if err != nil {
		a.metrics.RecordProviderError(r.Context(), "room", "ensure_room")
		writeError(w, http.StatusBadGateway, err)
		return
	}
	token, err := a.providers.Room.AccessToken(r.Context(), rm.Name, identity)
	if err != nil {
		a.metrics.RecordProviderError(r.Context(), "room", "access_token")
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"room":     rm,
		"identity": identity,
		"token":    token,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
