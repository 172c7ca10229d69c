package control

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"karolbroda.com/resonance/internal/library"
	"karolbroda.com/resonance/internal/lyrics"
	"karolbroda.com/resonance/internal/player"
	"karolbroda.com/resonance/internal/queue"
)

const maxBodyBytes = 1 << 16

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeJSON reads the request body into v. It writes the 400 itself and
// reports false when the body is not valid.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Warn("command failed", "error", err)
	}
	writeJSONError(w, status, err.Error())
}

func statusFor(err error) int {
	var unavailable *player.TrackUnavailableError
	switch {
	case errors.Is(err, library.ErrSongNotFound),
		errors.Is(err, library.ErrPlaylistNotFound),
		errors.Is(err, lyrics.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, library.ErrInvalidName),
		errors.Is(err, queue.ErrIndexOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, queue.ErrGroupSplit),
		errors.Is(err, queue.ErrEmptyGroup),
		errors.Is(err, player.ErrNothingLoaded):
		return http.StatusConflict
	case errors.Is(err, lyrics.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &unavailable):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
