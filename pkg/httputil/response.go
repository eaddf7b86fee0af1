package httputil

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

type envelope map[string]any

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write json response failed", slog.Any("err", err))
	}
}

// Error writes the uniform error body {"error":{"message","code","meta"}}.
// code is a stable machine-readable identifier; meta is optional.
func Error(ctx context.Context, w http.ResponseWriter, status int, msg, code string, meta map[string]any) {
	body := envelope{"message": msg}
	if code != "" {
		body["code"] = code
	}
	if len(meta) > 0 {
		body["meta"] = meta
	}
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "request failed", slog.Int("status", status), slog.String("code", code), slog.String("err", msg))
	}
	JSON(w, status, envelope{"error": body})
}

// Decode reads a JSON body into v, rejecting unknown fields and trailing data.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errTrailingData
	}
	return nil
}
