package authority

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lsmon/iotauth/internal/protocol/keydist"
	"github.com/lsmon/iotauth/internal/protocol/wire"
)

// Handler returns the HTTP routes of the authority.
func (a *Authority) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Post(keydist.SessionKeysPath, a.serveSessionKeys)
	return r
}

func (a *Authority) serveSessionKeys(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, wire.MaxFrameSize))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	out, err := a.HandleRequest(body)
	if err != nil {
		a.log.Warningf("request from %s rejected: %v", r.RemoteAddr, err)
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.Header().Set("Content-Type", keydist.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnknownEntity), errors.Is(err, keydist.ErrBadSignature):
		return http.StatusForbidden
	case errors.Is(err, ErrUnknownKey):
		return http.StatusNotFound
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrStaleRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
