package indices

import (
	"fmt"
	"sync"

	"assetflow/account"
	"assetflow/bizerror"
	"assetflow/domain/workorder"
	"assetflow/session"

	"github.com/sirupsen/logrus"
)

var (
	lock    sync.Mutex
	running bool

	SyncBatchSize = 500

	IndicesFullSyncFunc    = IndicesFullSync
	ScheduleNewSyncRunFunc = ScheduleNewSyncRun
)

// ScheduleNewSyncRun kicks off a full index rebuild in the background.
// At most one run is active at a time, a second request while running is
// acknowledged as not scheduled.
func ScheduleNewSyncRun(sec *session.Session) (bool, error) {
	if !sec.HasRole(account.SystemAdminPermission.ID) {
		return false, bizerror.ErrForbidden
	}

	lock.Lock()
	if running {
		lock.Unlock()
		return false, nil
	}
	running = true
	lock.Unlock()

	waitRunning := sync.WaitGroup{}
	waitRunning.Add(1)
	go func() {
		waitRunning.Done()
		defer func() {
			lock.Lock()
			running = false
			lock.Unlock()
		}()
		IndicesFullSyncFunc()
	}()
	waitRunning.Wait()
	return true, nil
}

func IndicesFullSync() (err error) {
	defer func() {
		if ret := recover(); ret != nil {
			e, ok := ret.(error)
			if ok {
				err = e
			} else {
				err = fmt.Errorf("error on indices full sync: %v", ret)
			}
		}
	}()

	page := 1
	for {
		records, err := workorder.LoadWorkOrdersFunc(page, SyncBatchSize)
		if err != nil {
			logrus.Warnf("indices full sync: error on retrieve work orders(page = %d, pageSize = %d): %v", page, SyncBatchSize, err)
			page++
			continue
		}

		if len(records) == 0 {
			logrus.Infof("indices full sync: there are no more work orders to index")
			return nil
		}

		if err := workorder.IndexWorkOrdersFunc(records); err != nil {
			logrus.Warnf("indices full sync: error on index work orders(page = %d, pageSize = %d): %v", page, SyncBatchSize, err)
		}
		page++
	}
}
