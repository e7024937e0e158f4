package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"buzztalk/internal/domain"
	"buzztalk/internal/service"
	"buzztalk/internal/ws"
)

type conversationView struct {
	ID          int64           `json:"id"`
	PairKey     *string         `json:"pair_key,omitempty"`
	Other       *userProjection `json:"other,omitempty"`
	LastMessage *messageView    `json:"last_message,omitempty"`
	Unread      int             `json:"unread"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type messageView struct {
	ID        int64              `json:"id"`
	ChatID    int64              `json:"chat_id"`
	SenderID  int64              `json:"sender_id"`
	Content   string             `json:"content"`
	CreatedAt time.Time          `json:"created_at"`
	Reactions []*domain.Reaction `json:"reactions"`
}

func toMessageView(m *domain.Message, reactions []*domain.Reaction) *messageView {
	if reactions == nil {
		reactions = []*domain.Reaction{}
	}
	return &messageView{
		ID:        m.ID,
		ChatID:    m.ConversationID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		Reactions: reactions,
	}
}

type createChatRequest struct {
	FriendID int64 `json:"friend_id"`
}

func handleCreateChat(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		var req createChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FriendID == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "friend_id is required"})
			return
		}
		conv, err := convSvc.GetOrCreate(r.Context(), currentUser.ID, req.FriendID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, conversationView{
			ID:        conv.ID,
			PairKey:   conv.PairKey,
			CreatedAt: conv.CreatedAt,
			UpdatedAt: conv.UpdatedAt,
		})
	}
}

func handleListChats(convSvc *service.ConversationService, msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		summaries, err := convSvc.List(r.Context(), currentUser.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		res := make([]conversationView, 0, len(summaries))
		for _, s := range summaries {
			view := conversationView{
				ID:        s.Conversation.ID,
				PairKey:   s.Conversation.PairKey,
				Unread:    s.Unread,
				CreatedAt: s.Conversation.CreatedAt,
				UpdatedAt: s.Conversation.UpdatedAt,
			}
			if s.Other != nil {
				p := projectUser(s.Other)
				view.Other = &p
			}
			if s.LastMessage != nil {
				reactions, err := msgSvc.Reactions(r.Context(), s.LastMessage.ID)
				if err != nil {
					writeError(w, err)
					return
				}
				view.LastMessage = toMessageView(s.LastMessage, reactions)
			}
			res = append(res, view)
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleListChatMessages(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		chatID, err := chatIDParam(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid chat id"})
			return
		}
		var after time.Time
		if v := r.URL.Query().Get("after"); v != "" {
			after, err = time.Parse(time.RFC3339Nano, v)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid 'after' cursor, want RFC3339"})
				return
			}
		}

		msgs, err := msgSvc.ListSince(r.Context(), chatID, currentUser.ID, after)
		if err != nil {
			writeError(w, err)
			return
		}
		res := make([]*messageView, 0, len(msgs))
		for _, m := range msgs {
			reactions, err := msgSvc.Reactions(r.Context(), m.ID)
			if err != nil {
				writeError(w, err)
				return
			}
			res = append(res, toMessageView(m, reactions))
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleMarkChatRead(convSvc *service.ConversationService, hub *ws.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		chatID, err := chatIDParam(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid chat id"})
			return
		}
		at, err := convSvc.MarkRead(r.Context(), chatID, currentUser.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		hub.BroadcastToRoom(chatID, map[string]any{
			"event":  "messagesRead",
			"chatId": chatID,
			"userId": currentUser.ID,
			"at":     at,
		}, "")
		writeJSON(w, http.StatusOK, map[string]any{"message": "marked as read", "at": at})
	}
}

func handleDeleteChat(convSvc *service.ConversationService, hub *ws.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		chatID, err := chatIDParam(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid chat id"})
			return
		}
		if err := convSvc.Delete(r.Context(), chatID, currentUser.ID); err != nil {
			writeError(w, err)
			return
		}
		hub.BroadcastToRoom(chatID, map[string]any{
			"event":  "chatDeleted",
			"chatId": chatID,
		}, "")
		writeJSON(w, http.StatusOK, map[string]any{"message": "chat deleted", "chat_id": chatID})
	}
}

func chatIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
}
