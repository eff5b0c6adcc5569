// Package settlement serves the reconciliation dashboard: the settlement,
// ticket and trip-close feeds, the summary, verification and manual match.
package settlement

import (
	"context"
	"net/http"

	"bitbucket.org/mmdatafocus/settlement_backend/config"
	"bitbucket.org/mmdatafocus/settlement_backend/middlewares"
	"bitbucket.org/mmdatafocus/settlement_backend/utils"
	"bitbucket.org/mmdatafocus/settlement_backend/workflow"
	"github.com/gin-gonic/gin"
)

// respondError answers with {error} and the status mapped from the error kind.
// Only unexpected failures are logged; validation and not-found are caller errors.
func respondError(c *gin.Context, funcName string, err error) {
	status := utils.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		config.LogError(config.GetLogger(), "settlement", funcName, c.FullPath(),
			map[string]interface{}{"correlation_id": cid}, err)
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": utils.PublicMessage(err)})
}

func actorFrom(ctx context.Context) workflow.Actor {
	s, ok := middlewares.SessionFromContext(ctx)
	if !ok {
		return workflow.Actor{}
	}
	return workflow.Actor{UserId: s.UserId, Name: s.Name}
}
