package workorder

import (
	"io"
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
	PathWorkOrders           = "/v1/work-orders"
	PathWorkOrderAttachments = "/v1/work-order-attachments"

	workOrdersRestValidator = validator.New()
)

type SearchQuery struct {
	Q string `form:"q"`
	domain.WorkOrderQuery
}

func RegisterWorkOrdersRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathWorkOrders, middleWares...)
	g.POST("", handleCreateWorkOrder)
	g.GET("", handleQueryWorkOrders)
	g.GET("search", handleSearchWorkOrders)
	g.GET(":id", handleDetailWorkOrder)
	g.PUT(":id", handleUpdateWorkOrder)
	g.DELETE(":id", handleDeleteWorkOrder)

	g.GET(":id/attachments", handleListAttachments)
	g.POST(":id/attachments", handleUploadAttachment)

	a := r.Group(PathWorkOrderAttachments, middleWares...)
	a.GET(":id/content", handleDownloadAttachment)
}

func parseIdParam(c *gin.Context) (types.ID, bool) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &misc.ErrorBody{Code: "common.bad_param", Message: "invalid id '" + c.Param("id") + "'"})
		return 0, false
	}
	return id, true
}

func handleCreateWorkOrder(c *gin.Context) {
	creation := WorkOrderCreation{}
	if err := c.ShouldBindBodyWith(&creation, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := workOrdersRestValidator.Struct(creation); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	record, err := CreateWorkOrderFunc(&creation, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, record)
}

func handleQueryWorkOrders(c *gin.Context) {
	query := domain.WorkOrderQuery{}
	_ = c.MustBindWith(&query, binding.Query)

	records, err := QueryWorkOrdersFunc(&query, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, records)
}

func handleSearchWorkOrders(c *gin.Context) {
	query := SearchQuery{}
	_ = c.MustBindWith(&query, binding.Query)

	docs, err := SearchWorkOrderDocsFunc(query.Q, &query.WorkOrderQuery, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, docs)
}

func handleDetailWorkOrder(c *gin.Context) {
	id, ok := parseIdParam(c)
	if !ok {
		return
	}
	record, err := DetailWorkOrderFunc(id, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, record)
}

func handleUpdateWorkOrder(c *gin.Context) {
	id, ok := parseIdParam(c)
	if !ok {
		return
	}
	updating := WorkOrderUpdating{}
	if err := c.ShouldBindBodyWith(&updating, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := workOrdersRestValidator.Struct(updating); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	record, err := UpdateWorkOrderFunc(id, &updating, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, record)
}

func handleDeleteWorkOrder(c *gin.Context) {
	id, ok := parseIdParam(c)
	if !ok {
		return
	}
	if err := DeleteWorkOrderFunc(id, session.ExtractSessionFromGinContext(c)); err != nil {
		panic(err)
	}
	c.AbortWithStatus(http.StatusNoContent)
}

func handleListAttachments(c *gin.Context) {
	id, ok := parseIdParam(c)
	if !ok {
		return
	}
	attachments, err := ListAttachmentsFunc(id, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, attachments)
}

func handleUploadAttachment(c *gin.Context) {
	id, ok := parseIdParam(c)
	if !ok {
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	file, err := fileHeader.Open()
	if err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	defer file.Close()

	attachment, err := UploadAttachmentFunc(id, fileHeader.Filename, file, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, attachment)
}

func handleDownloadAttachment(c *gin.Context) {
	id, ok := parseIdParam(c)
	if !ok {
		return
	}
	attachment, content, err := DownloadAttachmentFunc(id, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	defer content.Close()

	c.Header("Content-Disposition", `attachment; filename="`+attachment.Name+`"`)
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, content)
}
