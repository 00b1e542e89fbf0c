package asset

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
	PathAssets = "/v1/assets"

	assetsRestValidator = validator.New()
)

type AssetSearchQuery struct {
	Q string `form:"q"`
}

func RegisterAssetsRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathAssets, middleWares...)
	g.POST("", handleCreateAsset)
	g.GET("", handleQueryAssets)
	g.GET("search", handleSearchAssets)
	g.GET(":id", handleDetailAsset)
	g.PUT(":id", handleUpdateAsset)
}

func parseIdParam(c *gin.Context) (types.ID, bool) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &misc.ErrorBody{Code: "common.bad_param", Message: "invalid id '" + c.Param("id") + "'"})
		return 0, false
	}
	return id, true
}

func handleCreateAsset(c *gin.Context) {
	creation := AssetCreation{}
	if err := c.ShouldBindBodyWith(&creation, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := assetsRestValidator.Struct(creation); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	record, err := CreateAssetFunc(&creation, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, record)
}

func handleQueryAssets(c *gin.Context) {
	query := domain.AssetQuery{}
	_ = c.MustBindWith(&query, binding.Query)

	records, err := QueryAssetsFunc(&query, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, records)
}

func handleSearchAssets(c *gin.Context) {
	query := AssetSearchQuery{}
	_ = c.MustBindWith(&query, binding.Query)

	docs, err := SearchAssetDocsFunc(query.Q, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, docs)
}

func handleDetailAsset(c *gin.Context) {
	id, ok := parseIdParam(c)
	if !ok {
		return
	}
	record, err := DetailAssetFunc(id, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, record)
}

func handleUpdateAsset(c *gin.Context) {
	id, ok := parseIdParam(c)
	if !ok {
		return
	}
	updating := AssetUpdating{}
	if err := c.ShouldBindBodyWith(&updating, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := assetsRestValidator.Struct(updating); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	record, err := UpdateAssetFunc(id, &updating, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, record)
}
