package approval

import (
	"net/http"

	"assetflow/bizerror"
	"assetflow/domain"
	"assetflow/misc"
	"assetflow/session"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	PathWorkflowStates = "/v1/workflow-states"

	approvalsRestValidator = validator.New()
)

type ApprovalCreation struct {
	Action   domain.ApprovalAction `json:"action" validate:"required,oneof=approved rejected reassigned escalated"`
	Comments string                `json:"comments"`
}

type WorkflowStateQuery struct {
	EntityType domain.EntityType `form:"entityType" validate:"required"`
	EntityID   types.ID          `form:"entityId" validate:"required"`
}

func RegisterApprovalsRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathWorkflowStates, middleWares...)
	g.GET("", handleDetailWorkflowState)
	g.POST(":id/approvals", handleCreateApproval)
	g.GET(":id/approval-records", handleListApprovalRecords)
}

func handleDetailWorkflowState(c *gin.Context) {
	query := WorkflowStateQuery{}
	_ = c.MustBindWith(&query, binding.Query)
	if err := approvalsRestValidator.Struct(query); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	detail, err := DetailWorkflowStateFunc(query.EntityType, query.EntityID,
		session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, detail)
}

func handleCreateApproval(c *gin.Context) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &misc.ErrorBody{Code: "common.bad_param", Message: "invalid id '" + c.Param("id") + "'"})
		return
	}

	creation := ApprovalCreation{}
	if err := c.ShouldBindBodyWith(&creation, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := approvalsRestValidator.Struct(creation); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	sec := session.ExtractSessionFromGinContext(c)
	decision := ApprovalDecision{Comments: creation.Comments}

	var record *domain.ApprovalRecord
	switch creation.Action {
	case domain.ActionApproved:
		record, err = ApproveFunc(id, &decision, sec)
	case domain.ActionRejected:
		record, err = RejectFunc(id, &decision, sec)
	case domain.ActionReassigned:
		record, err = ReassignFunc(id, &decision, sec)
	case domain.ActionEscalated:
		record, err = EscalateFunc(id, &decision, sec)
	}
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, record)
}

func handleListApprovalRecords(c *gin.Context) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &misc.ErrorBody{Code: "common.bad_param", Message: "invalid id '" + c.Param("id") + "'"})
		return
	}

	records, err := ListApprovalRecordsFunc(id, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, records)
}
