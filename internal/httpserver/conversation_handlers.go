package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"chatcore/internal/service"
	"chatcore/internal/visibility"
)

// handleDeleteConversation deletes every message between the current user
// and {userID}. The scope comes from ?scope=self|everyone.
func handleDeleteConversation(msgSvc *service.MessageService) http.HandlerFunc {
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

		n, err := msgSvc.DeleteAll(r.Context(), currentUser.ID, chi.URLParam(r, "userID"), scope)
		if err != nil {
			writeDeleteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": n})
	}
}
