package metrics

import "testing"

func TestNoopImplementsMetrics(t *testing.T) {
	var m Metrics = Noop{}
	m.IncTriggersFound(3)
	m.IncPublished("vector")
	m.IncPublishFailed("data_not_found")
	m.IncMarkedDone()
	m.IncDeadLettered()
	m.ObserveCycleDuration(0.5)
}

func TestPromRegistersOnce(t *testing.T) {
	p := NewProm("geopublisher_test")
	// Re-registering the same collectors must not panic.
	p.register()

	p.IncTriggersFound(2)
	p.IncPublished("raster")
	p.IncPublishFailed("server_unavailable")
	p.IncMarkedDone()
	p.IncDeadLettered()
	p.ObserveCycleDuration(1.2)
}
