package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// NewRouter wires every route. The middlewares guard the /user routes only.
// Routes hang off the root router so that a method mismatch reaches the 405
// handler instead of falling through to a 404.
func NewRouter(h *Handler, mws ...mux.MiddlewareFunc) *mux.Router {
	r := mux.NewRouter()
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)

	guard := func(fn http.HandlerFunc) http.Handler {
		var next http.Handler = fn
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
	r.Handle("/user/list", guard(h.ListUsers)).Methods(http.MethodGet)
	r.Handle("/user/search/{pattern}", guard(h.SearchUsers)).Methods(http.MethodGet)
	r.Handle("/user/show/{email}", guard(h.ShowUser)).Methods(http.MethodGet)
	r.Handle("/user/create", guard(h.CreateUser)).Methods(http.MethodPost)
	r.Handle("/user/edit", guard(h.EditUser)).Methods(http.MethodPost)
	r.Handle("/user/del/{email}", guard(h.DeleteUser)).Methods(http.MethodGet)
	r.Handle("/user/export", guard(h.ExportUsers)).Methods(http.MethodGet)
	r.Handle("/user/import", guard(h.ImportUsers)).Methods(http.MethodPost)

	return r
}

var postRoutes = map[string]bool{
	"/user/create": true,
	"/user/edit":   true,
	"/user/import": true,
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	want := http.MethodGet
	if postRoutes[strings.TrimSuffix(r.URL.Path, "/")] {
		want = http.MethodPost
	}
	w.Header().Set("Allow", want)
	text(w, http.StatusMethodNotAllowed, fmt.Sprintf("ERROR: %s method is required ", want))
}
