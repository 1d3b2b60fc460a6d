package controller

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/givepower/powersyncx/pkg/db/power"
)

// HandleSyncRuns returns the most recent balance sync runs, newest first.
func (c *Controller) HandleSyncRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runs, err := c.App.Store.ListSyncRuns(r.Context(), limit)
	if err != nil {
		c.App.Logger.Error("sync runs query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, pagedResponse[power.SyncRun]{
		Data:  runs,
		Limit: limit,
	})
}
