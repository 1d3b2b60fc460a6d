package controller

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/givepower/powersyncx/pkg/db/power"
)

// HandleRounds returns registered round boundaries, newest first.
func (c *Controller) HandleRounds(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rounds, err := c.App.Store.ListRounds(r.Context(), limit)
	if err != nil {
		c.App.Logger.Error("rounds query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, pagedResponse[power.RoundSnapshot]{
		Data:  rounds,
		Limit: limit,
	})
}

// HandleRoundPower returns a user's recorded average power for a closed
// round. Returns 404 while the round has not been computed for that user.
func (c *Controller) HandleRoundPower(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	round, err := strconv.ParseUint(vars["round"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid round")
		return
	}
	userID, err := strconv.ParseUint(vars["userID"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	record, err := c.App.Store.GetRoundPower(r.Context(), userID, round)
	if err != nil {
		c.App.Logger.Error("round power query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "round power not yet computed")
		return
	}

	writeJSON(w, http.StatusOK, record)
}
