package httpapi

import (
	"encoding/json"
	"math/big"
	"net/http"
	"time"

	"github.com/cloutcards/pokerhouse/internal/apperr"
)

// M is a convenience alias for building JSON response bodies inline.
type M map[string]any

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps an apperr.Kind to the status codes of §6's error table
// and emits the {error, message} envelope.
func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	var status int
	var code string
	switch kind {
	case apperr.Validation:
		status, code = http.StatusBadRequest, "validation"
	case apperr.Unauthorized:
		status, code = http.StatusUnauthorized, "unauthorized"
	case apperr.NotFound:
		status, code = http.StatusNotFound, "not_found"
	case apperr.Conflict:
		status, code = http.StatusConflict, "conflict"
	case apperr.UpstreamTransient:
		status, code = http.StatusTooManyRequests, "upstream_transient"
	default:
		status, code = http.StatusInternalServerError, "internal"
	}
	writeJSON(w, status, M{"error": code, "message": err.Error()})
}

// bigString renders a *big.Int the way §6 requires 256-bit integers on the
// wire: a decimal string, "0" for nil.
func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// isoMillis renders a timestamp with millisecond precision; nil times
// serialize as null via the pointer itself.
func isoMillis(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

func isoMillisPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := isoMillis(*t)
	return &v
}

func hexBytes(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, 2+len(b)*2)
	out[0], out[1] = '0', 'x'
	for i, c := range b {
		out[2+i*2] = hextable[c>>4]
		out[3+i*2] = hextable[c&0x0f]
	}
	return string(out)
}
