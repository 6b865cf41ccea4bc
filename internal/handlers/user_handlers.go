package handlers

import (
	"net/http"

	"pharmacy-inventory/internal/middleware"
	"pharmacy-inventory/internal/services"

	"go.uber.org/zap"
)

func HandleListUsers(users *services.UserService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := users.ListUsers(r.Context(), middleware.ActorFromRequest(r))
		if err != nil {
			respondServiceError(w, r, logger, err)
			return
		}
		data := make([]UserResponse, 0, len(list))
		for _, u := range list {
			data = append(data, newUserResponse(u))
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"data": data})
	}
}

func HandleCreateUser(users *services.UserService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input services.CreateUserInput
		if !decodeJSON(w, r, &input) {
			return
		}
		user, err := users.CreateUser(r.Context(), middleware.ActorFromRequest(r), input)
		if err != nil {
			respondServiceError(w, r, logger, err)
			return
		}
		respondJSON(w, http.StatusCreated, newUserResponse(user))
	}
}

func HandleUpdateUser(users *services.UserService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r, "id")
		if !ok {
			return
		}
		var input services.UpdateUserInput
		if !decodeJSON(w, r, &input) {
			return
		}
		user, err := users.UpdateUser(r.Context(), middleware.ActorFromRequest(r), id, input)
		if err != nil {
			respondServiceError(w, r, logger, err)
			return
		}
		respondJSON(w, http.StatusOK, newUserResponse(user))
	}
}

func HandleDeleteUser(users *services.UserService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r, "id")
		if !ok {
			return
		}
		if err := users.DeleteUser(r.Context(), middleware.ActorFromRequest(r), id); err != nil {
			respondServiceError(w, r, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
