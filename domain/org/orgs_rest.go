package org

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
	PathOrgs = "/v1/orgs"

	orgsRestValidator = validator.New()
)

func RegisterOrgsRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathOrgs, middleWares...)
	g.POST("", handleCreateOrg)
	g.GET("", handleQueryOrgs)
	g.PUT(":id", handleUpdateOrgBase)

	g.GET(":id/members", handleListOrgMembers)
	g.POST(":id/members", handleUpsertOrgMember)
	g.DELETE(":id/members/:memberId", handleRemoveOrgMember)
}

func parseIdParam(c *gin.Context, name string) (types.ID, bool) {
	id, err := types.ParseID(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, &misc.ErrorBody{Code: "common.bad_param", Message: "invalid id '" + c.Param(name) + "'"})
		return 0, false
	}
	return id, true
}

func handleCreateOrg(c *gin.Context) {
	creation := OrgCreation{}
	if err := c.ShouldBindBodyWith(&creation, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := orgsRestValidator.Struct(creation); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	record, err := CreateOrgFunc(&creation, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, record)
}

func handleQueryOrgs(c *gin.Context) {
	records, err := QueryOrgsFunc(session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, records)
}

func handleUpdateOrgBase(c *gin.Context) {
	id, ok := parseIdParam(c, "id")
	if !ok {
		return
	}
	updating := OrgBaseUpdating{}
	if err := c.ShouldBindBodyWith(&updating, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := orgsRestValidator.Struct(updating); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	if err := UpdateOrgBaseFunc(id, &updating, session.ExtractSessionFromGinContext(c)); err != nil {
		panic(err)
	}
	c.AbortWithStatus(http.StatusNoContent)
}

func handleListOrgMembers(c *gin.Context) {
	id, ok := parseIdParam(c, "id")
	if !ok {
		return
	}
	members, err := ListOrgMembersFunc(id, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, members)
}

func handleUpsertOrgMember(c *gin.Context) {
	id, ok := parseIdParam(c, "id")
	if !ok {
		return
	}
	upsert := OrgMemberUpsert{}
	if err := c.ShouldBindBodyWith(&upsert, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := orgsRestValidator.Struct(upsert); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	if err := UpsertOrgMemberFunc(id, &upsert, session.ExtractSessionFromGinContext(c)); err != nil {
		panic(err)
	}
	c.AbortWithStatus(http.StatusNoContent)
}

func handleRemoveOrgMember(c *gin.Context) {
	id, ok := parseIdParam(c, "id")
	if !ok {
		return
	}
	memberID, ok := parseIdParam(c, "memberId")
	if !ok {
		return
	}
	if err := RemoveOrgMemberFunc(id, memberID, session.ExtractSessionFromGinContext(c)); err != nil {
		panic(err)
	}
	c.AbortWithStatus(http.StatusNoContent)
}
