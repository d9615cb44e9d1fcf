package handlers

import (
	"errors"
	"net/http"

	"github.com/md-rashed-zaman/gobarber/libs/auth"
	"github.com/md-rashed-zaman/gobarber/libs/httpx"
)

var errProviderOnly = errors.New("only providers can load notifications")

func (a *API) ListNotifications(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.providerCaller(w, r)
	if !ok {
		return
	}
	entries, err := a.feed.List(r.Context(), caller)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entries)
}

func (a *API) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.providerCaller(w, r)
	if !ok {
		return
	}
	entry, err := a.feed.MarkRead(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entry)
}

func (a *API) providerCaller(w http.ResponseWriter, r *http.Request) (int64, bool) {
	caller, ok := auth.CallerID(r.Context())
	if !ok {
		a.writeError(w, r, errUnauthenticated)
		return 0, false
	}
	provider, err := a.isProvider(r.Context(), caller)
	if err != nil {
		a.writeError(w, r, err)
		return 0, false
	}
	if !provider {
		a.writeError(w, r, errProviderOnly)
		return 0, false
	}
	return caller, true
}
