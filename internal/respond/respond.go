package respond

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-user-go/internal/apperr"
)

// CodeOK is the envelope code of every successful response.
const CodeOK = 0

// Envelope is the standard API response wrapper used across handlers.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// OK writes data inside a success envelope.
func OK(w http.ResponseWriter, data any) {
	write(w, nil, http.StatusOK, Envelope{Code: CodeOK, Message: "ok", Data: data})
}

// Error writes err as a failure envelope. Classified errors keep their code
// and message; anything else is reported as a generic system error and the
// cause is logged.
func Error(w http.ResponseWriter, logger *zap.SugaredLogger, err error) {
	e := apperr.From(err)
	if e.Kind == apperr.KindSystem && logger != nil {
		logger.Errorw("unhandled error", "err", err)
	} else if e.Err != nil && logger != nil {
		logger.Warnw("request failed", "code", e.Kind.Code(), "err", err)
	}
	write(w, logger, e.Kind.HTTPStatus(), Envelope{Code: e.Kind.Code(), Message: e.PublicMessage()})
}

func write(w http.ResponseWriter, logger *zap.SugaredLogger, status int, payload Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && logger != nil {
		logger.Warnw("respond: encode payload failed", "err", err)
	}
}
