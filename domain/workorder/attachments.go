package workorder

import (
	"io"

	"assetflow/bizerror"
	"assetflow/client/s3"
	"assetflow/domain"
	"assetflow/idgen"
	"assetflow/persistence"
	"assetflow/session"

	"github.com/fundwit/go-commons/types"
)

var (
	UploadAttachmentFunc   = UploadAttachment
	DownloadAttachmentFunc = DownloadAttachment
	ListAttachmentsFunc    = ListAttachments
)

func UploadAttachment(workOrderID types.ID, name string, content io.Reader, sec *session.Session) (*domain.WorkOrderAttachment, error) {
	record := domain.WorkOrder{}
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	if err := db.Where(&domain.WorkOrder{ID: workOrderID}).First(&record).Error; err != nil {
		return nil, err
	}
	if err := checkEditPermission(&record, sec); err != nil {
		return nil, err
	}

	attachment := domain.WorkOrderAttachment{
		ID: idgen.NextID(workOrderIdWorker), WorkOrderID: workOrderID, Name: name,
		UploaderID: sec.Identity.ID, CreateTime: types.CurrentTimestamp(),
	}
	attachment.ObjectKey = "work-orders/" + workOrderID.String() + "/" + attachment.ID.String()

	if err := s3.PutObjectFunc(attachment.ObjectKey, content, sec); err != nil {
		return nil, err
	}
	if err := db.Create(&attachment).Error; err != nil {
		return nil, err
	}
	return &attachment, nil
}

func DownloadAttachment(id types.ID, sec *session.Session) (*domain.WorkOrderAttachment, io.ReadCloser, error) {
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	attachment := domain.WorkOrderAttachment{}
	if err := db.Where(&domain.WorkOrderAttachment{ID: id}).First(&attachment).Error; err != nil {
		return nil, nil, err
	}
	record := domain.WorkOrder{}
	if err := db.Where(&domain.WorkOrder{ID: attachment.WorkOrderID}).First(&record).Error; err != nil {
		return nil, nil, err
	}
	if !sec.HasOrgViewPerm(record.OrgID) {
		return nil, nil, bizerror.ErrForbidden
	}

	content, err := s3.GetObjectFunc(attachment.ObjectKey, sec)
	if err != nil {
		return nil, nil, err
	}
	return &attachment, content, nil
}

func ListAttachments(workOrderID types.ID, sec *session.Session) (*[]domain.WorkOrderAttachment, error) {
	record := domain.WorkOrder{}
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	if err := db.Where(&domain.WorkOrder{ID: workOrderID}).First(&record).Error; err != nil {
		return nil, err
	}
	if !sec.HasOrgViewPerm(record.OrgID) {
		return nil, bizerror.ErrForbidden
	}

	var attachments []domain.WorkOrderAttachment
	if err := db.Where(&domain.WorkOrderAttachment{WorkOrderID: workOrderID}).
		Order("create_time ASC").Find(&attachments).Error; err != nil {
		return nil, err
	}
	return &attachments, nil
}
