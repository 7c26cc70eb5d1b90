package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"chatcore/internal/service"
	"chatcore/internal/visibility"
)

type messageSendRequest struct {
	Receiver     string   `json:"receiver"`
	Text         string   `json:"text"`
	Type         string   `json:"type"`
	IsForwarded  bool     `json:"is_forwarded"`
	UsersRelated []string `json:"users_related"`
}

type messageEditRequest struct {
	Text string `json:"text"`
}

func handleSendMessage(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req messageSendRequest
		if !decodeBody(w, r, &req) {
			return
		}

		env, err := msgSvc.Send(r.Context(), currentUser.ID, service.SendInput{
			ReceiverID:   req.Receiver,
			Text:         req.Text,
			Type:         req.Type,
			IsForwarded:  req.IsForwarded,
			UsersRelated: req.UsersRelated,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, env)
	}
}

func handleEditMessage(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req messageEditRequest
		if !decodeBody(w, r, &req) {
			return
		}

		env, err := msgSvc.Edit(r.Context(), currentUser.ID, chi.URLParam(r, "messageID"), req.Text)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, env)
	}
}

// handleDeleteMessage takes the scope from ?scope=self|everyone and
// defaults to self.
func handleDeleteMessage(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser, ok := requireUser(w, r)
		if !ok {
			return
		}
		scope, err := visibility.ParseScope(r.URL.Query().Get("scope"))
		if err != nil {
			writeDeleteError(w, err)
			return
		}

		msg, err := msgSvc.DeleteOne(r.Context(), currentUser.ID, chi.URLParam(r, "messageID"), scope)
		if err != nil {
			writeDeleteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":              true,
			"deleted_for_sender":   msg.DeletedForSender,
			"deleted_for_receiver": msg.DeletedForReceiver,
			"deleted_for_all":      msg.DeletedForAll,
		})
	}
}
