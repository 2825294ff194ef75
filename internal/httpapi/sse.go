package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/cloutcards/pokerhouse/internal/apperr"
)

// handleTableStream is §4.8's `/api/tables/:tableId/events?lastEventId`
// SSE subscription, delegated straight to the distributor.
func (s *Server) handleTableStream(w http.ResponseWriter, r *http.Request) {
	tableID, err := strconv.ParseInt(mux.Vars(r)["tableId"], 10, 64)
	if err != nil {
		writeError(w, apperr.Validationf("invalid table id"))
		return
	}
	lastEventID := int64(queryInt(r, "lastEventId", 0))
	if err := s.dist.StreamTable(r.Context(), w, tableID, lastEventID); err != nil {
		s.log.Warn().Err(err).Int64("tableId", tableID).Msg("table event stream ended")
	}
}
