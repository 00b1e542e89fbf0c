package incident

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
	PathIncidents = "/v1/safety-incidents"

	incidentsRestValidator = validator.New()
)

func RegisterIncidentsRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathIncidents, middleWares...)
	g.POST("", handleCreateIncident)
	g.GET("", handleQueryIncidents)
	g.GET(":id", handleDetailIncident)
	g.PUT(":id", handleUpdateIncident)
}

func parseIdParam(c *gin.Context) (types.ID, bool) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &misc.ErrorBody{Code: "common.bad_param", Message: "invalid id '" + c.Param("id") + "'"})
		return 0, false
	}
	return id, true
}

func handleCreateIncident(c *gin.Context) {
	creation := IncidentCreation{}
	if err := c.ShouldBindBodyWith(&creation, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := incidentsRestValidator.Struct(creation); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	record, err := CreateIncidentFunc(&creation, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, record)
}

func handleQueryIncidents(c *gin.Context) {
	query := domain.IncidentQuery{}
	_ = c.MustBindWith(&query, binding.Query)

	records, err := QueryIncidentsFunc(&query, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, records)
}

func handleDetailIncident(c *gin.Context) {
	id, ok := parseIdParam(c)
	if !ok {
		return
	}
	record, err := DetailIncidentFunc(id, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, record)
}

func handleUpdateIncident(c *gin.Context) {
	id, ok := parseIdParam(c)
	if !ok {
		return
	}
	updating := IncidentUpdating{}
	if err := c.ShouldBindBodyWith(&updating, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := incidentsRestValidator.Struct(updating); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	record, err := UpdateIncidentFunc(id, &updating, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, record)
}
