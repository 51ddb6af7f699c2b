package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/jamestelfer/casting-gate/internal/audit"
	"github.com/jamestelfer/casting-gate/internal/authz"
	"github.com/jamestelfer/casting-gate/internal/catalog"
	"github.com/jamestelfer/casting-gate/internal/jwt"
	"github.com/rs/zerolog"
)

func handleIndex() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "Casting Agency API")
	})
}

func handleListMovies(store *catalog.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeSuccess(w, r, "movies", store.Movies(r.Context()))
	})
}

func handleListActors(store *catalog.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeSuccess(w, r, "actors", store.Actors(r.Context()))
	})
}

func handleCreateMovie(store *catalog.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in catalog.MovieInput
		if !readBody(w, r, &in) {
			return
		}

		movie, err := store.CreateMovie(r.Context(), in)
		if err != nil {
			catalogError(w, r, err)
			return
		}

		logChange(r, "movie created", movie.ID)
		writeSuccess(w, r, "movie", movie)
	})
}

func handleCreateActor(store *catalog.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in catalog.ActorInput
		if !readBody(w, r, &in) {
			return
		}

		actor, err := store.CreateActor(r.Context(), in)
		if err != nil {
			catalogError(w, r, err)
			return
		}

		logChange(r, "actor created", actor.ID)
		writeSuccess(w, r, "actor", actor)
	})
}

func handleUpdateMovie(store *catalog.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		var in catalog.MovieInput
		if !readBody(w, r, &in) {
			return
		}

		movie, err := store.UpdateMovie(r.Context(), id, in)
		if err != nil {
			catalogError(w, r, err)
			return
		}

		logChange(r, "movie updated", movie.ID)
		writeSuccess(w, r, "movie", movie)
	})
}

func handleUpdateActor(store *catalog.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		var in catalog.ActorInput
		if !readBody(w, r, &in) {
			return
		}

		actor, err := store.UpdateActor(r.Context(), id, in)
		if err != nil {
			catalogError(w, r, err)
			return
		}

		logChange(r, "actor updated", actor.ID)
		writeSuccess(w, r, "actor", actor)
	})
}

func handleDeleteMovie(store *catalog.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		movie, err := store.DeleteMovie(r.Context(), id)
		if err != nil {
			catalogError(w, r, err)
			return
		}

		logChange(r, "movie deleted", movie.ID)
		writeSuccess(w, r, "deleted", movie)
	})
}

func handleDeleteActor(store *catalog.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		actor, err := store.DeleteActor(r.Context(), id)
		if err != nil {
			catalogError(w, r, err)
			return
		}

		logChange(r, "actor deleted", actor.ID)
		writeSuccess(w, r, "deleted", actor)
	})
}

func handleHealthCheck() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func handleNotFound() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz.WriteError(w, http.StatusNotFound, "Not found")
	})
}

// pathID reads the numeric ID from the path. A non-numeric ID cannot name a
// record, so it is reported as not found.
func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		authz.WriteError(w, http.StatusNotFound, "Not found")
		return 0, false
	}
	return id, true
}

func readBody(w http.ResponseWriter, r *http.Request, v any) bool {
	// Ensure that the request body is fully read prior to returning. This
	// avoids issues with blocked connections and connection reuse.
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		zerolog.Ctx(r.Context()).Info().Err(err).Msg("request body could not be read")
		authz.WriteError(w, http.StatusBadRequest, "Bad request")
		return false
	}

	return true
}

func catalogError(w http.ResponseWriter, r *http.Request, err error) {
	audit.Log(r.Context()).Error = err.Error()

	switch {
	case errors.Is(err, catalog.ErrMissingField):
		authz.WriteError(w, http.StatusBadRequest, "Bad request")
	case errors.Is(err, catalog.ErrNotFound):
		authz.WriteError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, catalog.ErrInvalid):
		authz.WriteError(w, http.StatusUnprocessableEntity, "Unprocessable entity")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("catalog operation failed")
		authz.WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeSuccess(w http.ResponseWriter, r *http.Request, key string, value any) {
	marshalledResponse, err := json.Marshal(map[string]any{
		"success": true,
		key:       value,
	})
	if err != nil {
		authz.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(marshalledResponse)
	if err != nil {
		// record failure to log: trying to respond to the client at this
		// point will likely fail
		zerolog.Ctx(r.Context()).Info().Err(err).Msg("failed to write response")
	}
}

// logChange records who changed the catalog. Handlers that change the
// catalog always sit behind the authorization middleware.
func logChange(r *http.Request, msg string, id int) {
	claims := jwt.RequireClaimsFromContext(r.Context())

	zerolog.Ctx(r.Context()).Info().
		Str("sub", claims.Subject).
		Int("id", id).
		Msg(msg)
}
