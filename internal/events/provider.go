package events

import (
	"github.com/crewmesh/crewmesh/internal/common/config"
	"github.com/crewmesh/crewmesh/internal/common/logger"
	"github.com/crewmesh/crewmesh/internal/events/bus"
)

// ProvideBus returns a NATS event bus when a URL is configured, otherwise
// the in-memory bus. Side-channel delivery is best-effort either way.
func ProvideBus(cfg config.NATSConfig, log *logger.Logger) (bus.EventBus, error) {
	if cfg.URL == "" {
		log.Info("no NATS URL configured, using in-memory event bus")
		return bus.NewMemoryEventBus(log), nil
	}
	return bus.NewNATSEventBus(cfg, log)
}
