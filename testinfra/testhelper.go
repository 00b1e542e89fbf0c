package testinfra

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"

	"assetflow/domain"
	"assetflow/session"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
)

// BuildSession builds a session whose org roles are derived from the
// "<role>_<orgID>" shaped perms.
func BuildSession(uid types.ID, perms ...string) *session.Session {
	orgRoles := []domain.OrgRole{}
	for _, perm := range perms {
		idx := strings.Index(perm, "_")
		if idx <= 0 {
			continue
		}
		role := perm[0:idx]
		orgId, err := types.ParseID(perm[idx+1:])
		if err != nil {
			continue
		}
		orgRoles = append(orgRoles, domain.OrgRole{OrgID: orgId, Role: role})
	}

	return &session.Session{
		Identity: session.Identity{ID: uid, Name: "user" + uid.String(), Nickname: "user" + uid.String()},
		Perms:    perms, OrgRoles: orgRoles, Context: context.Background(),
	}
}

func ExecuteRequest(req *http.Request, router *gin.Engine) (int, string, *http.Response) {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	resp := w.Result()
	bodyBytes, _ := ioutil.ReadAll(resp.Body)
	return resp.StatusCode, string(bodyBytes), resp
}
