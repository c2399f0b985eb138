package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/clicklone/clicklone/internal/app/storage"
	apperrors "github.com/clicklone/clicklone/internal/errors"
	"github.com/clicklone/clicklone/internal/httputil"
	"github.com/clicklone/clicklone/internal/logging"
)

const maxBodyBytes = 64 << 10

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apperrors.BadRequest(fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		case errors.Is(err, io.EOF):
			return apperrors.BadRequest("request body is required")
		default:
			return apperrors.BadRequest("invalid JSON: " + err.Error())
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	httputil.WriteJSON(w, status, data)
}

// writeError maps err to the error envelope. Unknown errors are logged and
// reported as 500 without their message.
func writeError(w http.ResponseWriter, r *http.Request, log *logging.Logger, err error) {
	se := apperrors.GetServiceError(err)
	switch {
	case se != nil:
	case errors.Is(err, storage.ErrNotFound):
		se = apperrors.NotFound("resource", "")
	case errors.Is(err, storage.ErrTokenUsed):
		se = apperrors.Conflict("payment token already used")
	default:
		se = apperrors.Internal("internal server error", err)
	}

	if se.HTTPStatus >= http.StatusInternalServerError {
		log.WithContext(r.Context()).WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}

	message := se.Message
	if se.Code == apperrors.CodeInternal {
		message = "internal server error"
	}
	httputil.WriteErrorResponse(w, r, se.HTTPStatus, string(se.Code), message, se.Details)
}

// queryInt reads an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.Validation(name, name+" must be an integer")
	}
	return n, nil
}

func visitorID(r *http.Request, fromBody string) string {
	if id := strings.TrimSpace(fromBody); id != "" {
		return id
	}
	return strings.TrimSpace(r.Header.Get("X-Visitor-ID"))
}
