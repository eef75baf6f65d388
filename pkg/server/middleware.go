package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrorResponseWriter lets handlers report failures as JSON errors.
type ErrorResponseWriter interface {
	http.ResponseWriter
	http.Flusher
	RespondWithError(err error)
}

type errorResponseWriter struct {
	http.ResponseWriter
	request *http.Request
	status  int
}

var _ ErrorResponseWriter = &errorResponseWriter{}

func (w *errorResponseWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *errorResponseWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *errorResponseWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *errorResponseWriter) RespondWithError(err error) {
	apiErr := classify("request failed", err)
	ev := log.Warn()
	if apiErr.Code >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(apiErr.Err).
		Str("method", w.request.Method).
		Str("path", w.request.URL.Path).
		Int("status", apiErr.Code).
		Msg(apiErr.Message)

	RespondWithJSON(w, apiErr.Code, map[string]string{"error": apiErr.Error()})
}

// RespondWithJSON writes data as a JSON body with the given status.
func RespondWithJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("could not encode response")
	}
}

// errorHandlerMiddleware wraps the writer so that handlers can call
// RespondWithError, and logs every request.
func errorHandlerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ew := &errorResponseWriter{ResponseWriter: w, request: r}
		next.ServeHTTP(ew, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ew.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func adaptHandler(h func(ErrorResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ew, ok := w.(ErrorResponseWriter)
		if !ok {
			ew = &errorResponseWriter{ResponseWriter: w, request: r}
		}
		h(ew, r)
	}
}
