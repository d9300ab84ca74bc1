package webhooks

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/goliatone/go-kick/core"
)

const MaxBodyBytes int64 = 1 << 20

type errorBody struct {
	Error     string `json:"error"`
	TextCode  string `json:"text_code"`
	MessageID string `json:"message_id,omitempty"`
}

// Handler serves Kick webhook POSTs. Dispatched and duplicate deliveries
// answer 200; rejections answer with the mapped error status.
func Handler(dispatcher *Dispatcher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
		if err != nil {
			status := http.StatusBadRequest
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			http.Error(w, http.StatusText(status), status)
			return
		}

		outcome := dispatcher.HandleEvent(r.Context(), EnvelopeFromHeaders(r.Header, body))
		switch outcome.State {
		case StateDispatched, StateDuplicate:
			w.WriteHeader(http.StatusOK)
			return
		}

		mapped := core.MapError(outcome.Err)
		status := http.StatusUnauthorized
		payload := errorBody{Error: "webhook rejected", TextCode: core.KickErrorVerificationFailed, MessageID: outcome.MessageID}
		if mapped != nil {
			payload.TextCode = mapped.TextCode
			if mapped.Code >= http.StatusBadRequest {
				status = mapped.Code
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(payload)
	})
}
