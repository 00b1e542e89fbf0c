package maintenance

import (
	"net/http"

	"assetflow/account"
	"assetflow/bizerror"
	"assetflow/misc"
	"assetflow/session"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	PathMaintenancePlans    = "/v1/maintenance-plans"
	PathMaintenancePlanRuns = "/v1/maintenance-plan-runs"

	plansRestValidator = validator.New()
)

type PlanQuery struct {
	OrgID types.ID `form:"orgId" validate:"required"`
}

func RegisterPlansRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathMaintenancePlans, middleWares...)
	g.POST("", handleCreatePlan)
	g.GET("", handleQueryPlans)
	g.PUT(":id", handleUpdatePlan)
	g.DELETE(":id", handleDeletePlan)

	runs := r.Group(PathMaintenancePlanRuns, middleWares...)
	runs.POST("", handleRunDuePlans)
}

func parseIdParam(c *gin.Context) (types.ID, bool) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &misc.ErrorBody{Code: "common.bad_param", Message: "invalid id '" + c.Param("id") + "'"})
		return 0, false
	}
	return id, true
}

func handleCreatePlan(c *gin.Context) {
	creation := PlanCreation{}
	if err := c.ShouldBindBodyWith(&creation, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := plansRestValidator.Struct(creation); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	record, err := CreatePlanFunc(&creation, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, record)
}

func handleQueryPlans(c *gin.Context) {
	query := PlanQuery{}
	_ = c.MustBindWith(&query, binding.Query)
	if err := plansRestValidator.Struct(query); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	records, err := QueryPlansFunc(query.OrgID, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, records)
}

func handleUpdatePlan(c *gin.Context) {
	id, ok := parseIdParam(c)
	if !ok {
		return
	}
	updating := PlanUpdating{}
	if err := c.ShouldBindBodyWith(&updating, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := plansRestValidator.Struct(updating); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	record, err := UpdatePlanFunc(id, &updating, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, record)
}

func handleDeletePlan(c *gin.Context) {
	id, ok := parseIdParam(c)
	if !ok {
		return
	}
	if err := DeletePlanFunc(id, session.ExtractSessionFromGinContext(c)); err != nil {
		panic(err)
	}
	c.AbortWithStatus(http.StatusNoContent)
}

func handleRunDuePlans(c *gin.Context) {
	sec := session.ExtractSessionFromGinContext(c)
	if !sec.HasRole(account.SystemAdminPermission.ID) {
		panic(bizerror.ErrForbidden)
	}

	count, err := RunDuePlansFunc()
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, gin.H{"created": count})
}
