package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"buzztalk/internal/domain"
	"buzztalk/internal/service"
)

// userProjection is the public view of a user exposed to other users.
type userProjection struct {
	ID          int64   `json:"id"`
	Username    string  `json:"username"`
	DisplayName *string `json:"display_name,omitempty"`
	Status      string  `json:"status"`
	LastSeen    any     `json:"last_seen,omitempty"`
}

func projectUser(u *domain.User) userProjection {
	return userProjection{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Status:      u.Status,
		LastSeen:    u.LastSeen,
	}
}

func handleSearchUser(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		username := chi.URLParam(r, "username")
		user, err := userSvc.Search(r.Context(), username, currentUser.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, projectUser(user))
	}
}

func handleListFriends(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		friends, err := userSvc.ListFriends(r.Context(), currentUser.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		res := make([]userProjection, 0, len(friends))
		for _, f := range friends {
			res = append(res, projectUser(f))
		}
		writeJSON(w, http.StatusOK, res)
	}
}

type friendRequestView struct {
	SenderID  int64  `json:"sender_id"`
	Username  string `json:"username"`
	CreatedAt any    `json:"created_at"`
}

func handleListFriendRequests(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		reqs, err := userSvc.ListFriendRequests(r.Context(), currentUser.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		res := make([]friendRequestView, 0, len(reqs))
		for _, fr := range reqs {
			view := friendRequestView{SenderID: fr.SenderID, CreatedAt: fr.CreatedAt}
			if sender, err := userSvc.GetByID(r.Context(), fr.SenderID); err == nil && sender != nil {
				view.Username = sender.Username
			}
			res = append(res, view)
		}
		writeJSON(w, http.StatusOK, res)
	}
}

type userIDRequest struct {
	UserID int64 `json:"user_id"`
}

func handleSendFriendRequest(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		var req struct {
			RecipientID int64 `json:"recipient_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RecipientID == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "recipient_id is required"})
			return
		}
		if err := userSvc.SendFriendRequest(r.Context(), currentUser.ID, req.RecipientID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "friend request sent"})
	}
}

func handleRespondFriendRequest(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		var req struct {
			RequesterID int64  `json:"requester_id"`
			Response    string `json:"response"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RequesterID == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "requester_id is required"})
			return
		}
		if req.Response != "accept" && req.Response != "reject" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "response must be 'accept' or 'reject'"})
			return
		}
		accept := req.Response == "accept"
		if err := userSvc.RespondFriendRequest(r.Context(), currentUser.ID, req.RequesterID, accept); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "friend request " + req.Response + "ed"})
	}
}

func handleUnfriend(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		var req userIDRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
			return
		}
		if err := userSvc.Unfriend(r.Context(), currentUser.ID, req.UserID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "unfriended"})
	}
}

func handleBlock(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		var req userIDRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
			return
		}
		if err := userSvc.Block(r.Context(), currentUser.ID, req.UserID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "user blocked"})
	}
}

func handleUnblock(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		var req userIDRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
			return
		}
		if err := userSvc.Unblock(r.Context(), currentUser.ID, req.UserID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "user unblocked"})
	}
}
