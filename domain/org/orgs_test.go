package org_test

import (
	"context"
	"sync"
	"testing"

	"assetflow/account"
	"assetflow/bizerror"
	"assetflow/domain"
	"assetflow/domain/org"
	"assetflow/persistence"
	"assetflow/testinfra"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/assert"
)

func setup(t *testing.T, testDatabase **testinfra.TestDatabase) {
	db := testinfra.StartMysqlTestDatabase("assetflow")
	assert.Nil(t, db.DS.GormDB(context.Background()).AutoMigrate(
		&domain.Organization{}, &domain.OrgMember{}, &account.User{}).Error)
	persistence.ActiveDataSourceManager = db.DS
	*testDatabase = db
}
func teardown(t *testing.T, testDatabase *testinfra.TestDatabase) {
	if testDatabase != nil {
		testinfra.StopMysqlTestDatabase(testDatabase)
	}
}

func TestCreateOrg(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should create org with uppercased identifier and creator as manager", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		record, err := org.CreateOrg(&org.OrgCreation{Name: "plant one", Identifier: "pla"},
			testinfra.BuildSession(100))
		Expect(err).To(BeNil())
		Expect(record.Identifier).To(Equal("PLA"))
		Expect(record.NextWorkOrderNum).To(Equal(1))

		var members []domain.OrgMember
		db := testDatabase.DS.GormDB(context.Background())
		Expect(db.Where(&domain.OrgMember{OrgID: record.ID}).Find(&members).Error).To(BeNil())
		Expect(len(members)).To(Equal(1))
		Expect(members[0].MemberID).To(Equal(types.ID(100)))
		Expect(members[0].Role).To(Equal(domain.OrgRoleManager))
	})
}

func TestQueryOrgs(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should scope results to the caller's orgs", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		first, err := org.CreateOrg(&org.OrgCreation{Name: "plant one", Identifier: "PLA"},
			testinfra.BuildSession(100))
		Expect(err).To(BeNil())
		_, err = org.CreateOrg(&org.OrgCreation{Name: "plant two", Identifier: "PLB"},
			testinfra.BuildSession(200))
		Expect(err).To(BeNil())

		records, err := org.QueryOrgs(testinfra.BuildSession(100, domain.OrgRoleManager+"_"+first.ID.String()))
		Expect(err).To(BeNil())
		Expect(len(*records)).To(Equal(1))
		Expect((*records)[0].Name).To(Equal("plant one"))

		records, err = org.QueryOrgs(testinfra.BuildSession(300, account.SystemViewPermission.ID))
		Expect(err).To(BeNil())
		Expect(len(*records)).To(Equal(2))

		records, err = org.QueryOrgs(testinfra.BuildSession(400))
		Expect(err).To(BeNil())
		Expect(len(*records)).To(Equal(0))
	})
}

func TestUpdateOrgBase(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should require org manager role", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		record, err := org.CreateOrg(&org.OrgCreation{Name: "plant one", Identifier: "PLA"},
			testinfra.BuildSession(100))
		Expect(err).To(BeNil())

		Expect(org.UpdateOrgBase(record.ID, &org.OrgBaseUpdating{Name: "renamed"},
			testinfra.BuildSession(200, domain.OrgRoleTechnician+"_"+record.ID.String()))).
			To(Equal(bizerror.ErrForbidden))

		Expect(org.UpdateOrgBase(record.ID, &org.OrgBaseUpdating{Name: "renamed"},
			testinfra.BuildSession(100, domain.OrgRoleManager+"_"+record.ID.String()))).To(BeNil())

		db := testDatabase.DS.GormDB(context.Background())
		found := domain.Organization{}
		Expect(db.Where(&domain.Organization{ID: record.ID}).First(&found).Error).To(BeNil())
		Expect(found.Name).To(Equal("renamed"))
	})
}

func TestNextWorkOrderIdentifier(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should produce sequential identifiers", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)
		db := testDatabase.DS.GormDB(context.Background())
		Expect(db.Create(&domain.Organization{ID: 1, Name: "plant one", Identifier: "PLA",
			NextWorkOrderNum: 1, CreateTime: types.CurrentTimestamp()}).Error).To(BeNil())

		var first, second string
		Expect(db.Transaction(func(tx *gorm.DB) error {
			var err error
			first, err = org.NextWorkOrderIdentifier(1, tx)
			return err
		})).To(BeNil())
		Expect(db.Transaction(func(tx *gorm.DB) error {
			var err error
			second, err = org.NextWorkOrderIdentifier(1, tx)
			return err
		})).To(BeNil())
		Expect(first).To(Equal("PLA-1"))
		Expect(second).To(Equal("PLA-2"))
	})

	t.Run("should never hand out the same identifier under concurrency", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)
		db := testDatabase.DS.GormDB(context.Background())
		Expect(db.Create(&domain.Organization{ID: 1, Name: "plant one", Identifier: "PLA",
			NextWorkOrderNum: 1, CreateTime: types.CurrentTimestamp()}).Error).To(BeNil())

		mutex := sync.Mutex{}
		issued := map[string]int{}
		wg := sync.WaitGroup{}
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					var identifier string
					err := testDatabase.DS.GormDB(context.Background()).Transaction(func(tx *gorm.DB) error {
						var err error
						identifier, err = org.NextWorkOrderIdentifier(1, tx)
						return err
					})
					if err != nil {
						continue // lost the conditional update, retry
					}
					mutex.Lock()
					issued[identifier]++
					mutex.Unlock()
					return
				}
			}()
		}
		wg.Wait()

		Expect(len(issued)).To(Equal(8))
		for _, count := range issued {
			Expect(count).To(Equal(1))
		}
	})
}

func TestOrgMembers(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should manage membership with manager role only", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		record, err := org.CreateOrg(&org.OrgCreation{Name: "plant one", Identifier: "PLA"},
			testinfra.BuildSession(100))
		Expect(err).To(BeNil())
		manager := testinfra.BuildSession(100, domain.OrgRoleManager+"_"+record.ID.String())
		viewer := testinfra.BuildSession(300, domain.OrgRoleTechnician+"_"+record.ID.String())

		Expect(org.UpsertOrgMember(record.ID, &org.OrgMemberUpsert{MemberID: 300,
			Role: domain.OrgRoleTechnician}, viewer)).To(Equal(bizerror.ErrForbidden))
		Expect(org.UpsertOrgMember(record.ID, &org.OrgMemberUpsert{MemberID: 300,
			Role: domain.OrgRoleTechnician}, manager)).To(BeNil())
		// upsert again to change the role
		Expect(org.UpsertOrgMember(record.ID, &org.OrgMemberUpsert{MemberID: 300,
			Role: domain.OrgRoleSupervisor}, manager)).To(BeNil())

		db := testDatabase.DS.GormDB(context.Background())
		bob := account.User{ID: 300, Name: "bob", Nickname: "Bob", Secret: account.HashSha256("secret")}
		Expect(db.Create(&bob).Error).To(BeNil())

		members, err := org.ListOrgMembers(record.ID, viewer)
		Expect(err).To(BeNil())
		Expect(len(*members)).To(Equal(2))

		_, err = org.ListOrgMembers(record.ID, testinfra.BuildSession(500))
		Expect(err).To(Equal(bizerror.ErrForbidden))

		Expect(org.RemoveOrgMember(record.ID, 300, viewer)).To(Equal(bizerror.ErrForbidden))
		Expect(org.RemoveOrgMember(record.ID, 300, manager)).To(BeNil())
		members, err = org.ListOrgMembers(record.ID, manager)
		Expect(err).To(BeNil())
		Expect(len(*members)).To(Equal(1))
	})
}
