package device

import (
	"context"
	"sync"

	"assetflow/bizerror"
	"assetflow/domain"
	"assetflow/idgen"
	"assetflow/persistence"
	"assetflow/session"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sony/sonyflake"
	"golang.org/x/time/rate"
)

var (
	deviceIdWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

	CreateDeviceFunc   = CreateDevice
	QueryDevicesFunc   = QueryDevices
	IngestReadingFunc  = IngestReading
	RecentReadingsFunc = RecentReadings

	// each device may push at most one reading per second, with small bursts
	ingestLimiters   = map[string]*rate.Limiter{}
	ingestLimitersMu sync.Mutex
)

type DeviceCreation struct {
	OrgID      types.ID `json:"orgId" validate:"required"`
	AssetID    types.ID `json:"assetId"`
	Name       string   `json:"name" validate:"required"`
	ExternalID string   `json:"externalId" validate:"required"`
}

type ReadingCreation struct {
	Metric string  `json:"metric" validate:"required"`
	Value  float64 `json:"value"`
	Unit   string  `json:"unit"`
}

func CreateDevice(c *DeviceCreation, sec *session.Session) (*domain.Device, error) {
	if !sec.HasRole(domain.OrgRoleManager+"_"+c.OrgID.String()) &&
		!sec.HasRole(domain.OrgRoleSupervisor+"_"+c.OrgID.String()) {
		return nil, bizerror.ErrForbidden
	}

	record := domain.Device{
		ID: idgen.NextID(deviceIdWorker), OrgID: c.OrgID, AssetID: c.AssetID,
		Name: c.Name, ExternalID: c.ExternalID,
		CreateTime: types.CurrentTimestamp(),
	}
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	if err := db.Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func QueryDevices(orgID types.ID, sec *session.Session) (*[]domain.Device, error) {
	if !sec.HasOrgViewPerm(orgID) {
		return nil, bizerror.ErrForbidden
	}
	var records []domain.Device
	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	if err := db.Where(&domain.Device{OrgID: orgID}).Order("name ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return &records, nil
}

func limiterOf(externalID string) *rate.Limiter {
	ingestLimitersMu.Lock()
	defer ingestLimitersMu.Unlock()
	limiter, found := ingestLimiters[externalID]
	if !found {
		limiter = rate.NewLimiter(rate.Limit(1), 10)
		ingestLimiters[externalID] = limiter
	}
	return limiter
}

// IngestReading stores a reading pushed by a device and fans it out to
// stream subscribers. Overflowing readings are dropped, devices are
// expected to retry with backoff.
func IngestReading(externalID string, c *ReadingCreation, sec *session.Session) (*domain.SensorReading, error) {
	if !limiterOf(externalID).Allow() {
		return nil, bizerror.ErrTooManyRequests
	}

	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	record := domain.Device{}
	if err := db.Where(&domain.Device{ExternalID: externalID}).First(&record).Error; err != nil {
		return nil, err
	}
	if !sec.HasRoleSuffix("_" + record.OrgID.String()) {
		return nil, bizerror.ErrForbidden
	}

	reading := domain.SensorReading{
		ID: idgen.NextID(deviceIdWorker), DeviceID: record.ID,
		Metric: c.Metric, Value: c.Value, Unit: c.Unit,
		RecordedAt: types.CurrentTimestamp(),
	}
	if err := db.Create(&reading).Error; err != nil {
		return nil, err
	}

	ActiveReadingHub.Publish(reading)
	return &reading, nil
}

// RecentReadings returns up to limit readings of a device, most recent
// first. The limit is capped at 100.
func RecentReadings(deviceID types.ID, limit int, sec *session.Session) ([]domain.SensorReading, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	db := persistence.ActiveDataSourceManager.GormDB(ctxOf(sec))
	record := domain.Device{}
	if err := db.Where(&domain.Device{ID: deviceID}).First(&record).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, bizerror.ErrNotFound
		}
		return nil, err
	}
	if !sec.HasOrgViewPerm(record.OrgID) {
		return nil, bizerror.ErrForbidden
	}

	var readings []domain.SensorReading
	if err := db.Where(&domain.SensorReading{DeviceID: deviceID}).
		Order("recorded_at DESC, id DESC").Limit(limit).Find(&readings).Error; err != nil {
		return nil, err
	}
	return readings, nil
}

func ctxOf(sec *session.Session) context.Context {
	if sec != nil && sec.Context != nil {
		return sec.Context
	}
	return context.Background()
}
