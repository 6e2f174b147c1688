package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/bytedance/sonic"

	"github.com/gita-voice-lab/internal/gateway"
	"github.com/gita-voice-lab/internal/logging"
	"github.com/gita-voice-lab/internal/upstream"
)

var errBadJSON = errors.New("invalid JSON body")

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	b, err := sonic.Marshal(v)
	if err != nil {
		logging.Errorw("server: encode response", "err", err)
		status = http.StatusInternalServerError
		b = []byte(`{"error":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, gateway.ErrorBody{Error: msg})
}

// decode reads a JSON body of at most limit bytes into v.
func decode(w http.ResponseWriter, r *http.Request, limit int64, v interface{}) error {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		return err
	}
	if err := sonic.Unmarshal(b, v); err != nil {
		return errBadJSON
	}
	return nil
}

// writeDecodeError answers a body that could not be read.
func writeDecodeError(w http.ResponseWriter, err error) {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

// writeUpstreamError relays a provider failure with the provider's own
// status and body. Failures without a response become 500.
func writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	var ue *upstream.Error
	if errors.As(err, &ue) && ue.Status > 0 {
		logging.WarnwCtx(r.Context(), "server: upstream error", "provider", ue.Provider, "status", ue.Status)
		writeError(w, ue.Status, ue.Body)
		return
	}
	logging.WarnwCtx(r.Context(), "server: upstream call failed", "err", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}
