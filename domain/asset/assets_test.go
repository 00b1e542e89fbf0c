package asset_test

import (
	"context"
	"testing"

	"assetflow/bizerror"
	"assetflow/domain"
	"assetflow/domain/asset"
	"assetflow/es"
	"assetflow/persistence"
	"assetflow/session"
	"assetflow/testinfra"

	"github.com/fundwit/go-commons/types"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/assert"
)

var indexedAssets []asset.AssetDocument

func setup(t *testing.T, testDatabase **testinfra.TestDatabase) {
	db := testinfra.StartMysqlTestDatabase("assetflow")
	assert.Nil(t, db.DS.GormDB(context.Background()).AutoMigrate(&domain.Asset{}).Error)
	persistence.ActiveDataSourceManager = db.DS
	*testDatabase = db

	indexedAssets = nil
	es.IndexFunc = func(index string, id types.ID, doc interface{}, s *session.Session) error {
		indexedAssets = append(indexedAssets, doc.(asset.AssetDocument))
		return nil
	}
}
func teardown(t *testing.T, testDatabase *testinfra.TestDatabase) {
	es.IndexFunc = es.Index
	if testDatabase != nil {
		testinfra.StopMysqlTestDatabase(testDatabase)
	}
}

func TestCreateAsset(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should require manager or supervisor role", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		_, err := asset.CreateAsset(&asset.AssetCreation{OrgID: 1, Name: "pump 7"},
			testinfra.BuildSession(100, domain.OrgRoleTechnician+"_1"))
		Expect(err).To(Equal(bizerror.ErrForbidden))
	})

	t.Run("should persist asset and index the document", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		record, err := asset.CreateAsset(&asset.AssetCreation{OrgID: 1, Name: "pump 7",
			Tag: "P-007", Category: "pump", LocationPath: "plant-1/line-2/pump-7"},
			testinfra.BuildSession(100, domain.OrgRoleSupervisor+"_1"))
		Expect(err).To(BeNil())
		Expect(record.Tag).To(Equal("P-007"))

		Expect(len(indexedAssets)).To(Equal(1))
		Expect(indexedAssets[0].ID).To(Equal(record.ID))
		Expect(indexedAssets[0].Name).To(Equal("pump 7"))
	})
}

func TestUpdateAsset(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should update and reindex the asset", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)
		sec := testinfra.BuildSession(100, domain.OrgRoleManager+"_1")

		created, err := asset.CreateAsset(&asset.AssetCreation{OrgID: 1, Name: "pump 7"}, sec)
		Expect(err).To(BeNil())

		updated, err := asset.UpdateAsset(created.ID, &asset.AssetUpdating{
			Name: "pump 7 rebuilt", Tag: "P-007", LocationPath: "plant-1/line-3/pump-7"}, sec)
		Expect(err).To(BeNil())
		Expect(updated.Name).To(Equal("pump 7 rebuilt"))
		Expect(updated.LocationPath).To(Equal("plant-1/line-3/pump-7"))
		Expect(len(indexedAssets)).To(Equal(2))

		_, err = asset.UpdateAsset(created.ID, &asset.AssetUpdating{Name: "x"},
			testinfra.BuildSession(200, domain.OrgRoleTechnician+"_1"))
		Expect(err).To(Equal(bizerror.ErrForbidden))
	})
}

func TestQueryAssets(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should scope to visible orgs and order by name", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		_, err := asset.CreateAsset(&asset.AssetCreation{OrgID: 1, Name: "boiler 2"},
			testinfra.BuildSession(100, domain.OrgRoleManager+"_1"))
		Expect(err).To(BeNil())
		_, err = asset.CreateAsset(&asset.AssetCreation{OrgID: 1, Name: "agitator 1"},
			testinfra.BuildSession(100, domain.OrgRoleManager+"_1"))
		Expect(err).To(BeNil())
		_, err = asset.CreateAsset(&asset.AssetCreation{OrgID: 2, Name: "pump 9"},
			testinfra.BuildSession(200, domain.OrgRoleManager+"_2"))
		Expect(err).To(BeNil())

		records, err := asset.QueryAssets(&domain.AssetQuery{},
			testinfra.BuildSession(100, domain.OrgRoleTechnician+"_1"))
		Expect(err).To(BeNil())
		Expect(len(*records)).To(Equal(2))
		Expect((*records)[0].Name).To(Equal("agitator 1"))
		Expect((*records)[1].Name).To(Equal("boiler 2"))

		records, err = asset.QueryAssets(&domain.AssetQuery{Name: "boil"},
			testinfra.BuildSession(100, domain.OrgRoleTechnician+"_1"))
		Expect(err).To(BeNil())
		Expect(len(*records)).To(Equal(1))
		Expect((*records)[0].Name).To(Equal("boiler 2"))
	})
}
