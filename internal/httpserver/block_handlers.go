package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"chatcore/internal/domain"
	"chatcore/internal/service"
)

func handleListBlocks(blockSvc *service.BlockService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		blocks, err := blockSvc.List(r.Context(), user.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		if blocks == nil {
			blocks = []*domain.BlockRelation{}
		}
		writeJSON(w, http.StatusOK, blocks)
	}
}

func handleBlock(blockSvc *service.BlockService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		rel, err := blockSvc.Block(r.Context(), user.ID, chi.URLParam(r, "userID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rel)
	}
}

func handleUnblock(blockSvc *service.BlockService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		if err := blockSvc.Unblock(r.Context(), user.ID, chi.URLParam(r, "userID")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
