package telemetry

import (
	"testing"

	"github.com/train-control/tcc/internal/config"
)

func BenchmarkPublishWithoutSubscribers(b *testing.B) {
	hub := NewHub(config.LoadTimingBaseline(), nil, nil)
	defer hub.Stop()

	event := Event{Type: EventJunction, Data: map[string]interface{}{"decision": "LEFT"}}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = hub.PublishVehicle("train-01", event)
	}
}

func BenchmarkEventIDGeneration(b *testing.B) {
	hub := NewHub(config.LoadTimingBaseline(), nil, nil)
	defer hub.Stop()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			hub.nextEventID("train-01")
		}
	})
}
