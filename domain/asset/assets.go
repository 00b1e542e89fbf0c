package asset

import (
	"context"
	"encoding/json"

	"assetflow/bizerror"
	"assetflow/domain"
	"assetflow/es"
	"assetflow/idgen"
	"assetflow/persistence"
	"assetflow/session"

	"github.com/fundwit/go-commons/types"
	"github.com/sirupsen/logrus"
	"github.com/sony/sonyflake"
)

var (
	assetIdWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

	AssetIndexName = "assets"

	CreateAssetFunc     = CreateAsset
	DetailAssetFunc     = DetailAsset
	UpdateAssetFunc     = UpdateAsset
	QueryAssetsFunc     = QueryAssets
	SearchAssetDocsFunc = SearchAssetDocs
)

type AssetCreation struct {
	OrgID types.ID `json:"orgId" validate:"required"`
	Name  string   `json:"name" validate:"required"`

	Tag          string `json:"tag"`
	Category     string `json:"category"`
	LocationPath string `json:"locationPath"`
}

type AssetUpdating struct {
	Name         string `json:"name" validate:"required"`
	Tag          string `json:"tag"`
	Category     string `json:"category"`
	LocationPath string `json:"locationPath"`
}

type AssetDocument struct {
	domain.Asset
}

func CreateAsset(c *AssetCreation, sec *session.Session) (*domain.Asset, error) {
	if !sec.HasRole(domain.OrgRoleManager+"_"+c.OrgID.String()) &&
		!sec.HasRole(domain.OrgRoleSupervisor+"_"+c.OrgID.String()) {
		return nil, bizerror.ErrForbidden
	}

	record := domain.Asset{
		ID: idgen.NextID(assetIdWorker), OrgID: c.OrgID, Name: c.Name,
		Tag: c.Tag, Category: c.Category, LocationPath: c.LocationPath,
		CreateTime: types.CurrentTimestamp(),
	}
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	if err := db.Create(&record).Error; err != nil {
		return nil, err
	}

	if err := es.IndexFunc(AssetIndexName, record.ID, AssetDocument{Asset: record}, sec); err != nil {
		logrus.Warnf("index asset %d: %v\n", record.ID, err)
	}
	return &record, nil
}

func DetailAsset(id types.ID, sec *session.Session) (*domain.Asset, error) {
	record := domain.Asset{}
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	if err := db.Where(&domain.Asset{ID: id}).First(&record).Error; err != nil {
		return nil, err
	}
	if !sec.HasOrgViewPerm(record.OrgID) {
		return nil, bizerror.ErrForbidden
	}
	return &record, nil
}

func UpdateAsset(id types.ID, u *AssetUpdating, sec *session.Session) (*domain.Asset, error) {
	record := domain.Asset{}
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	if err := db.Where(&domain.Asset{ID: id}).First(&record).Error; err != nil {
		return nil, err
	}
	if !sec.HasRole(domain.OrgRoleManager+"_"+record.OrgID.String()) &&
		!sec.HasRole(domain.OrgRoleSupervisor+"_"+record.OrgID.String()) {
		return nil, bizerror.ErrForbidden
	}

	if err := db.Model(&domain.Asset{}).Where(&domain.Asset{ID: id}).
		Update(map[string]interface{}{
			"name": u.Name, "tag": u.Tag, "category": u.Category, "location_path": u.LocationPath,
		}).Error; err != nil {
		return nil, err
	}
	if err := db.Where(&domain.Asset{ID: id}).First(&record).Error; err != nil {
		return nil, err
	}

	if err := es.IndexFunc(AssetIndexName, record.ID, AssetDocument{Asset: record}, sec); err != nil {
		logrus.Warnf("index asset %d: %v\n", record.ID, err)
	}
	return &record, nil
}

func QueryAssets(q *domain.AssetQuery, sec *session.Session) (*[]domain.Asset, error) {
	var records []domain.Asset
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))

	visibleOrgs := sec.VisibleOrgs()
	if len(visibleOrgs) == 0 {
		return &[]domain.Asset{}, nil
	}
	query := db.Where(&domain.Asset{OrgID: q.OrgID, Category: q.Category}).
		Where("org_id in (?)", visibleOrgs)
	if q.Name != "" {
		query = query.Where("name LIKE ?", "%"+q.Name+"%")
	}
	if err := query.Order("name ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return &records, nil
}

// SearchAssetDocs full text search over name, tag and location, scoped to
// the caller's visible orgs.
func SearchAssetDocs(text string, sec *session.Session) ([]AssetDocument, error) {
	visibleOrgs := sec.VisibleOrgs()
	if len(visibleOrgs) == 0 {
		return []AssetDocument{}, nil
	}
	orgIds := make([]string, 0, len(visibleOrgs))
	for _, id := range visibleOrgs {
		orgIds = append(orgIds, id.String())
	}

	boolQuery := es.H{"filter": []es.H{{"terms": es.H{"orgId": orgIds}}}}
	if text != "" {
		boolQuery["must"] = es.H{"multi_match": es.H{
			"query": text, "fields": []string{"name", "tag", "locationPath"},
		}}
	}

	result, err := es.SearchFunc(AssetIndexName, es.H{"query": es.H{"bool": boolQuery}}, sec)
	if err != nil {
		return nil, err
	}

	docs := make([]AssetDocument, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		doc := AssetDocument{}
		if err := json.Unmarshal([]byte(hit.Source), &doc); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func ctxOf(sec *session.Session) context.Context {
	if sec != nil && sec.Context != nil {
		return sec.Context
	}
	return context.Background()
}
