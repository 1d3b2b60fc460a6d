package controller

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/givepower/powersyncx/pkg/db/power"
)

// HandleRankings returns the current project power ranking, best rank first.
// The ranking is a materialized snapshot: it is always internally consistent,
// at worst slightly stale until the next sync cycle.
func (c *Controller) HandleRankings(w http.ResponseWriter, r *http.Request) {
	ranking, err := c.App.Store.GetRanking(r.Context())
	if err != nil {
		c.App.Logger.Error("ranking query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, pagedResponse[power.ProjectRank]{
		Data:  ranking,
		Limit: len(ranking),
	})
}

// HandleProjectRank returns a single project's rank and total power.
// Returns 404 when the project is absent from the current ranking.
func (c *Controller) HandleProjectRank(w http.ResponseWriter, r *http.Request) {
	projectID, err := strconv.ParseUint(mux.Vars(r)["projectID"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid project id")
		return
	}

	rank, err := c.App.Store.GetProjectRank(r.Context(), projectID)
	if err != nil {
		c.App.Logger.Error("project rank query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if rank == nil {
		writeError(w, http.StatusNotFound, "project not ranked")
		return
	}

	writeJSON(w, http.StatusOK, rank)
}
