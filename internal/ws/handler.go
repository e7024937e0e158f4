package ws

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"buzztalk/internal/domain"
	"buzztalk/internal/security"
	"buzztalk/internal/service"
)

type wsAuthError struct {
	status int
	msg    string
}

func (e wsAuthError) Error() string {
	return e.msg
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	if len(allowed) == 0 {
		return func(r *http.Request) bool {
			return false
		}
	}

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			return false
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

func extractTokenFromWSRequest(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[len("Bearer "):])
		if token != "" {
			return token, nil
		}
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") {
			token := parts[1]
			if token != "" {
				return token, nil
			}
		}
	}

	return "", wsAuthError{status: http.StatusUnauthorized, msg: "missing bearer token"}
}

// messagePayload is the newMessage frame body: the message plus the sender
// projection clients render without a second fetch.
func messagePayload(m *domain.Message, sender *domain.User) map[string]any {
	p := map[string]any{
		"event":     "newMessage",
		"messageId": m.ID,
		"chatId":    m.ConversationID,
		"senderId":  m.SenderID,
		"content":   m.Content,
		"createdAt": m.CreatedAt,
	}
	if sender != nil {
		p["senderUsername"] = sender.Username
		p["senderDisplayName"] = sender.DisplayName
	}
	return p
}

// MakeHandler returns an HTTP handler for the /ws endpoint.
// Authenticates via Bearer token (Authorization header or Sec-WebSocket-Protocol),
// registers presence, joins a room per conversation, then dispatches events:
//   - joinChat            -> join room if caller is a participant
//   - sendMessage         -> persist & fan out (room + registry backstop)
//   - startTyping/stopTyping -> relay to room, excluding the sender's session
//   - reactMessage        -> toggle reaction, persist, broadcast to room
//   - sendFriendRequest / acceptFriendRequest -> relay to target user
func MakeHandler(
	hub *Hub,
	tokens *security.TokenService,
	users domain.UserRepository,
	friends domain.FriendRepository,
	convSvc *service.ConversationService,
	msgSvc *service.MessageService,
	allowedOrigins []string,
) http.HandlerFunc {
	checkOrigin := makeCheckOrigin(allowedOrigins)
	upgrader := websocket.Upgrader{
		CheckOrigin: checkOrigin,
		Subprotocols: []string{
			"bearer",
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !checkOrigin(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		tokenStr, err := extractTokenFromWSRequest(r)
		if err != nil {
			if authErr, ok := err.(wsAuthError); ok {
				http.Error(w, authErr.msg, authErr.status)
				return
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		userID, err := tokens.Parse(tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		// The connection outlives the request-scoped timeout middleware.
		ctx := context.WithoutCancel(r.Context())
		user, err := users.GetByID(ctx, userID)
		if err != nil || user == nil || !user.IsActive {
			http.Error(w, "user not found or inactive", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		sess := NewSession(user.ID, conn)
		hub.Register(sess)

		if err := users.SetStatus(ctx, user.ID, domain.StatusOnline, time.Now().UTC()); err != nil {
			log.Printf("ws: set online for %d: %v", user.ID, err)
		}
		announceToFriends(ctx, hub, friends, user.ID, map[string]any{
			"event":  "friendOnline",
			"userId": user.ID,
		})

		// Join a room per existing conversation before reading any events so
		// room fan-out reaches this session immediately.
		if convs, err := convSvc.ListForUser(ctx, user.ID); err != nil {
			log.Printf("ws: list conversations for %d: %v", user.ID, err)
		} else {
			for _, c := range convs {
				hub.Join(c.ID, sess)
			}
		}

		defer func() {
			cleared := hub.Unregister(sess)
			conn.Close()
			if !cleared {
				// A newer session superseded this one; the user is still online.
				return
			}
			lastSeen := time.Now().UTC()
			if err := users.SetStatus(context.Background(), user.ID, domain.StatusOffline, lastSeen); err != nil {
				log.Printf("ws: set offline for %d: %v", user.ID, err)
			}
			announceToFriends(context.Background(), hub, friends, user.ID, map[string]any{
				"event":    "friendOffline",
				"userId":   user.ID,
				"lastSeen": lastSeen,
			})
		}()

		for {
			var payload map[string]any
			if err := conn.ReadJSON(&payload); err != nil {
				break
			}
			event, _ := payload["event"].(string)
			switch event {

			case "joinChat":
				chatID := int64Field(payload, "chatId")
				if chatID == 0 {
					continue
				}
				ok, err := convSvc.IsParticipant(ctx, chatID, user.ID)
				if err != nil {
					log.Printf("ws: joinChat participant check: %v", err)
					continue
				}
				if ok {
					hub.Join(chatID, sess)
				}

			case "sendMessage":
				chatID := int64Field(payload, "chatId")
				content, _ := payload["content"].(string)
				if chatID == 0 || content == "" {
					sendError(sess, "sendMessage requires chatId and non-empty content")
					continue
				}
				msg, err := msgSvc.Send(ctx, chatID, user.ID, content)
				if err != nil {
					log.Printf("ws: send message: %v", err)
					sendError(sess, "failed to send message")
					continue
				}
				if msg == nil {
					// Suppressed (blocked relationship); deliberately silent.
					continue
				}
				hub.Join(chatID, sess)
				participantIDs, err := convSvc.ParticipantIDs(ctx, chatID)
				if err != nil {
					log.Printf("ws: get participants: %v", err)
					continue
				}
				hub.BroadcastToConversation(chatID, participantIDs, messagePayload(msg, user))

			case "startTyping", "stopTyping":
				chatID := int64Field(payload, "chatId")
				if chatID == 0 {
					continue
				}
				ok, err := convSvc.IsParticipant(ctx, chatID, user.ID)
				if err != nil || !ok {
					sendError(sess, "not allowed for this conversation")
					continue
				}
				out := "userTyping"
				if event == "stopTyping" {
					out = "userStoppedTyping"
				}
				hub.BroadcastToRoom(chatID, map[string]any{
					"event":  out,
					"chatId": chatID,
					"userId": user.ID,
				}, sess.ID)

			case "reactMessage":
				messageID := int64Field(payload, "messageId")
				emoji, _ := payload["emoji"].(string)
				if messageID == 0 || emoji == "" {
					continue
				}
				chatID, reactions, err := msgSvc.React(ctx, messageID, user.ID, emoji)
				if err != nil {
					log.Printf("ws: react message: %v", err)
					continue
				}
				hub.BroadcastToRoom(chatID, map[string]any{
					"event":     "messageReaction",
					"messageId": messageID,
					"reactions": reactions,
				}, "")

			case "sendFriendRequest":
				recipientID := int64Field(payload, "recipientId")
				if recipientID == 0 {
					continue
				}
				hub.NotifyUser(recipientID, map[string]any{
					"event": "newFriendRequest",
				})

			case "acceptFriendRequest":
				requesterID := int64Field(payload, "requesterId")
				if requesterID == 0 {
					continue
				}
				hub.NotifyUser(requesterID, map[string]any{
					"event": "friendRequestAccepted",
				})

			default:
				log.Printf("ws: unknown event %q from user %d", event, user.ID)
			}
		}
	}
}

// announceToFriends delivers a presence frame to every currently-online
// friend via their registry session.
func announceToFriends(ctx context.Context, hub *Hub, friends domain.FriendRepository, userID int64, payload map[string]any) {
	list, err := friends.ListFriends(ctx, userID)
	if err != nil {
		log.Printf("ws: list friends for %d: %v", userID, err)
		return
	}
	for _, f := range list {
		if hub.Presence().IsOnline(f.ID) {
			hub.NotifyUser(f.ID, payload)
		}
	}
}

func int64Field(payload map[string]any, key string) int64 {
	f, _ := payload[key].(float64)
	return int64(f)
}

func sendError(s *Session, msg string) {
	_ = s.Send(map[string]any{
		"event":   "error",
		"message": msg,
	})
}
