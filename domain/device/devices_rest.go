package device

import (
	"net/http"
	"strconv"

	"assetflow/bizerror"
	"assetflow/misc"
	"assetflow/session"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var (
	PathDevices       = "/v1/devices"
	PathDeviceStreams = "/v1/device-streams"

	devicesRestValidator = validator.New()

	streamUpgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
)

type DeviceQuery struct {
	OrgID types.ID `form:"orgId" validate:"required"`
}

func RegisterDevicesRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathDevices, middleWares...)
	g.POST("", handleCreateDevice)
	g.GET("", handleQueryDevices)
	g.GET(":id/readings", handleRecentReadings)
	g.POST(":externalId/readings", handleIngestReading)

	s := r.Group(PathDeviceStreams, middleWares...)
	s.GET("", handleDeviceStream)
}

func handleCreateDevice(c *gin.Context) {
	creation := DeviceCreation{}
	if err := c.ShouldBindBodyWith(&creation, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := devicesRestValidator.Struct(creation); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	record, err := CreateDeviceFunc(&creation, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, record)
}

func handleQueryDevices(c *gin.Context) {
	query := DeviceQuery{}
	_ = c.MustBindWith(&query, binding.Query)
	if err := devicesRestValidator.Struct(query); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	records, err := QueryDevicesFunc(query.OrgID, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, records)
}

func handleRecentReadings(c *gin.Context) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &misc.ErrorBody{Code: "common.bad_param", Message: "invalid id '" + c.Param("id") + "'"})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	readings, err := RecentReadingsFunc(id, limit, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, readings)
}

func handleIngestReading(c *gin.Context) {
	creation := ReadingCreation{}
	if err := c.ShouldBindBodyWith(&creation, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := devicesRestValidator.Struct(creation); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	reading, err := IngestReadingFunc(c.Param("externalId"), &creation, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, reading)
}

// handleDeviceStream upgrades to a websocket that pushes readings as they
// arrive, optionally filtered to a single device with ?deviceId=.
func handleDeviceStream(c *gin.Context) {
	var deviceID types.ID
	if raw := c.Query("deviceId"); raw != "" {
		id, err := types.ParseID(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, &misc.ErrorBody{Code: "common.bad_param", Message: "invalid device id '" + raw + "'"})
			return
		}
		deviceID = id
	}

	conn, err := streamUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	defer conn.Close()

	ch := ActiveReadingHub.Subscribe(deviceID)
	defer ActiveReadingHub.Unsubscribe(ch)

	// drain client frames to notice disconnects
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case reading, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(reading); err != nil {
				logrus.Debugf("device stream closed: %v", err)
				return
			}
		case <-done:
			return
		}
	}
}
