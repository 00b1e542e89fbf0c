package template

import (
	"net/http"

	"assetflow/bizerror"
	"assetflow/misc"
	"assetflow/session"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	PathWorkflowTemplates = "/v1/workflow-templates"
	PathWorkflowSteps     = "/v1/workflow-steps"
	PathRoleAssignments   = "/v1/step-role-assignments"

	templatesRestValidator = validator.New()
)

func RegisterTemplatesRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathWorkflowTemplates, middleWares...)
	g.POST("", handleCreateTemplate)
	g.GET("", handleQueryTemplates)
	g.GET(":id", handleDetailTemplate)
	g.PUT(":id", handleUpdateTemplateBase)
	g.DELETE(":id", handleDeleteTemplate)
	g.PUT(":id/steps", handleReplaceSteps)

	s := r.Group(PathWorkflowSteps, middleWares...)
	s.GET(":id/role-assignments", handleListStepRoleAssignments)
	s.POST(":id/role-assignments", handleCreateStepRoleAssignment)

	a := r.Group(PathRoleAssignments, middleWares...)
	a.DELETE(":id", handleDeleteStepRoleAssignment)
}

func parseIdParam(c *gin.Context) (types.ID, bool) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &misc.ErrorBody{Code: "common.bad_param", Message: "invalid id '" + c.Param("id") + "'"})
		return 0, false
	}
	return id, true
}

func handleCreateTemplate(c *gin.Context) {
	creation := TemplateCreation{}
	if err := c.ShouldBindBodyWith(&creation, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := templatesRestValidator.Struct(creation); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	detail, err := CreateTemplateFunc(&creation, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, detail)
}

func handleQueryTemplates(c *gin.Context) {
	query := TemplateQuery{}
	_ = c.MustBindWith(&query, binding.Query)

	templates, err := QueryTemplatesFunc(&query, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, templates)
}

func handleDetailTemplate(c *gin.Context) {
	id, ok := parseIdParam(c)
	if !ok {
		return
	}
	detail, err := DetailTemplateFunc(id, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, detail)
}

func handleUpdateTemplateBase(c *gin.Context) {
	id, ok := parseIdParam(c)
	if !ok {
		return
	}
	updating := TemplateBaseUpdating{}
	if err := c.ShouldBindBodyWith(&updating, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := templatesRestValidator.Struct(updating); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	record, err := UpdateTemplateBaseFunc(id, &updating, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, record)
}

func handleDeleteTemplate(c *gin.Context) {
	id, ok := parseIdParam(c)
	if !ok {
		return
	}
	if err := DeleteTemplateFunc(id, session.ExtractSessionFromGinContext(c)); err != nil {
		panic(err)
	}
	c.AbortWithStatus(http.StatusNoContent)
}

func handleReplaceSteps(c *gin.Context) {
	id, ok := parseIdParam(c)
	if !ok {
		return
	}
	steps := []StepCreation{}
	if err := c.ShouldBindBodyWith(&steps, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	for _, s := range steps {
		if err := templatesRestValidator.Struct(s); err != nil {
			panic(&bizerror.ErrBadParam{Cause: err})
		}
	}

	detail, err := ReplaceStepsFunc(id, steps, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, detail)
}

func handleListStepRoleAssignments(c *gin.Context) {
	id, ok := parseIdParam(c)
	if !ok {
		return
	}
	assignments, err := ListStepRoleAssignmentsFunc(id, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, assignments)
}

func handleCreateStepRoleAssignment(c *gin.Context) {
	id, ok := parseIdParam(c)
	if !ok {
		return
	}
	creation := StepRoleAssignmentCreation{}
	if err := c.ShouldBindBodyWith(&creation, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := templatesRestValidator.Struct(creation); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	assignment, err := CreateStepRoleAssignmentFunc(id, &creation, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, assignment)
}

func handleDeleteStepRoleAssignment(c *gin.Context) {
	id, ok := parseIdParam(c)
	if !ok {
		return
	}
	if err := DeleteStepRoleAssignmentFunc(id, session.ExtractSessionFromGinContext(c)); err != nil {
		panic(err)
	}
	c.AbortWithStatus(http.StatusNoContent)
}
