package workorder

import (
	"encoding/json"
	"fmt"

	"assetflow/domain"
	"assetflow/es"
	"assetflow/session"

	"github.com/fundwit/go-commons/types"
	"github.com/sirupsen/logrus"
)

var (
	WorkOrderIndexName = "work_orders"

	IndexWorkOrdersFunc      = IndexWorkOrders
	DeleteWorkOrderIndexFunc = DeleteWorkOrderIndex
	SearchWorkOrderDocsFunc  = SearchWorkOrderDocs
)

type WorkOrderDocument struct {
	domain.WorkOrder
}

type BatchActionError map[types.ID]error

func (e BatchActionError) Error() string {
	return fmt.Sprintf("%v", map[types.ID]error(e))
}

func IndexWorkOrders(records []domain.WorkOrder) error {
	errs := BatchActionError{}
	for _, record := range records {
		doc := WorkOrderDocument{WorkOrder: record}
		if err := es.IndexFunc(WorkOrderIndexName, doc.ID, doc, nil); err != nil {
			errs[doc.ID] = err
			logrus.Warnf("index work order %d %s %s\n", doc.ID, doc.Identifier, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func DeleteWorkOrderIndex(id types.ID, sec *session.Session) error {
	return es.DeleteDocumentByIdFunc(WorkOrderIndexName, id, sec)
}

// SearchWorkOrderDocs runs a full text query over title and description,
// hard scoped to the caller's visible orgs.
func SearchWorkOrderDocs(text string, q *domain.WorkOrderQuery, sec *session.Session) ([]WorkOrderDocument, error) {
	visibleOrgs := sec.VisibleOrgs()
	if len(visibleOrgs) == 0 {
		return []WorkOrderDocument{}, nil
	}
	orgIds := make([]string, 0, len(visibleOrgs))
	for _, id := range visibleOrgs {
		orgIds = append(orgIds, id.String())
	}

	filter := []es.H{{"terms": es.H{"orgId": orgIds}}}
	if q.Status != "" {
		filter = append(filter, es.H{"term": es.H{"status": q.Status}})
	}
	if q.Priority != "" {
		filter = append(filter, es.H{"term": es.H{"priority": q.Priority}})
	}
	if q.AssetID != 0 {
		filter = append(filter, es.H{"term": es.H{"assetId": q.AssetID.String()}})
	}

	boolQuery := es.H{"filter": filter}
	if text != "" {
		boolQuery["must"] = es.H{"multi_match": es.H{
			"query": text, "fields": []string{"title", "identifier", "description"},
		}}
	}

	result, err := es.SearchFunc(WorkOrderIndexName, es.H{"query": es.H{"bool": boolQuery}}, sec)
	if err != nil {
		return nil, err
	}

	docs := make([]WorkOrderDocument, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		doc := WorkOrderDocument{}
		if err := json.Unmarshal([]byte(hit.Source), &doc); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
