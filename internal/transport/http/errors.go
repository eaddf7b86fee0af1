package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cwrk-planet/ephemeral-chat/internal/domain"
	httpmw "github.com/cwrk-planet/ephemeral-chat/internal/transport/http/middleware"
	"github.com/cwrk-planet/ephemeral-chat/pkg/httputil"
)

const (
	codeInvalidInput     = "invalid_input"
	codeRoomGone         = "room_gone"
	codeStoreUnavailable = "store_unavailable"
	codeInternal         = "internal"
)

// statusFor maps service errors onto HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, codeInvalidInput
	case errors.Is(err, domain.ErrRoomNotFound):
		return http.StatusNotFound, codeRoomGone
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, codeStoreUnavailable
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
		fallthrough
	case http.StatusInternalServerError:
		httpmw.L(r.Context()).ErrorContext(r.Context(), "handler."+op, slog.Any("err", err))
		msg = http.StatusText(status)
	}
	httputil.Error(r.Context(), w, status, msg, code, nil)
}
