package handler

import (
	"encoding/json"
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/model"
	"storefront/internal/service"
	appErrors "storefront/pkg/errors"
	"storefront/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// staffRoles may use the back-office surfaces.
var staffRoles = []string{model.RoleAdmin, model.RoleSale, model.RoleStocker}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.Abort(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload: "+err.Error()))
		return false
	}
	return true
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Abort(c, appErrors.Clone(appErrors.ErrValidation, "invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

func actor(c *gin.Context) (service.Actor, bool) {
	a, err := middleware.ActorFromContext(c)
	if err != nil {
		response.Abort(c, err)
		return service.Actor{}, false
	}
	return a, true
}

// submit routes a privileged mutation through the approval workflow. Direct
// application answers 200, a queued request answers 202.
func submit(c *gin.Context, approvals service.ApprovalService, t model.RequestType, targetID *uuid.UUID, payload interface{}) {
	a, ok := actor(c)
	if !ok {
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		response.Abort(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return
	}

	result, err := approvals.Submit(c.Request.Context(), a, service.SubmitRequest{Type: t, TargetID: targetID, Payload: raw})
	if err != nil {
		response.Abort(c, err)
		return
	}
	writeSubmitResult(c, result)
}

func writeSubmitResult(c *gin.Context, result service.SubmitResult) {
	status := http.StatusOK
	if result.Outcome == service.OutcomePending {
		status = http.StatusAccepted
	}
	c.JSON(status, response.SuccessMessage(status, result.Message, result))
}
