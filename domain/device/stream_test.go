package device_test

import (
	"testing"

	"assetflow/domain"
	"assetflow/domain/device"

	"github.com/fundwit/go-commons/types"
	. "github.com/onsi/gomega"
)

func TestReadingHubPublish(t *testing.T) {
	RegisterTestingT(t)

	t.Run("should deliver readings to matching subscribers only", func(t *testing.T) {
		hub := device.NewReadingHub()
		all := hub.Subscribe(0)
		pumpOnly := hub.Subscribe(types.ID(7))
		defer hub.Unsubscribe(all)
		defer hub.Unsubscribe(pumpOnly)

		hub.Publish(domain.SensorReading{ID: 1, DeviceID: 7, Metric: "temperature", Value: 42})
		hub.Publish(domain.SensorReading{ID: 2, DeviceID: 8, Metric: "pressure", Value: 3})

		Expect((<-all).ID).To(Equal(types.ID(1)))
		Expect((<-all).ID).To(Equal(types.ID(2)))
		Expect((<-pumpOnly).DeviceID).To(Equal(types.ID(7)))
		Expect(len(pumpOnly)).To(Equal(0))
	})

	t.Run("should drop readings for slow subscribers instead of blocking", func(t *testing.T) {
		hub := device.NewReadingHub()
		slow := hub.Subscribe(0)
		defer hub.Unsubscribe(slow)

		for i := 0; i < 200; i++ {
			hub.Publish(domain.SensorReading{ID: types.ID(i + 1), DeviceID: 7})
		}
		Expect(len(slow)).To(Equal(64))
	})
}

func TestReadingHubRecent(t *testing.T) {
	RegisterTestingT(t)

	t.Run("should keep the most recent readings first", func(t *testing.T) {
		hub := device.NewReadingHub()
		for i := 0; i < 3; i++ {
			hub.Publish(domain.SensorReading{ID: types.ID(i + 1), DeviceID: 7})
		}

		recent := hub.Recent(10)
		Expect(len(recent)).To(Equal(3))
		Expect(recent[0].ID).To(Equal(types.ID(3)))
		Expect(recent[2].ID).To(Equal(types.ID(1)))
	})

	t.Run("should cap the buffer at one hundred readings", func(t *testing.T) {
		hub := device.NewReadingHub()
		for i := 0; i < 150; i++ {
			hub.Publish(domain.SensorReading{ID: types.ID(i + 1), DeviceID: 7})
		}

		recent := hub.Recent(0)
		Expect(len(recent)).To(Equal(device.RecentBufferCap))
		Expect(recent[0].ID).To(Equal(types.ID(150)))
		Expect(recent[len(recent)-1].ID).To(Equal(types.ID(51)))
	})

	t.Run("should survive unsubscribing twice", func(t *testing.T) {
		hub := device.NewReadingHub()
		ch := hub.Subscribe(0)
		hub.Unsubscribe(ch)
		hub.Unsubscribe(ch)
		Expect(hub.SubscriberCount()).To(Equal(0))
	})
}

func TestReadingHubConcurrency(t *testing.T) {
	RegisterTestingT(t)

	t.Run("should tolerate concurrent publish and subscribe", func(t *testing.T) {
		hub := device.NewReadingHub()
		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < 100; i++ {
				hub.Publish(domain.SensorReading{ID: types.ID(i + 1), DeviceID: types.ID(i%3 + 1)})
			}
		}()
		for i := 0; i < 20; i++ {
			ch := hub.Subscribe(types.ID(i%3 + 1))
			hub.Unsubscribe(ch)
		}
		<-done
		Expect(hub.SubscriberCount()).To(Equal(0))
		Expect(len(hub.Recent(0))).To(Equal(100))
	})
}
