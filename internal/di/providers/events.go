package providers

import (
	"fmt"

	"github.com/samber/do/v2"

	"github.com/townsquareapp/townsquare-server/internal/config"
	"github.com/townsquareapp/townsquare-server/internal/events"
	"github.com/townsquareapp/townsquare-server/internal/logger"
)

// ProvideEventPublisher connects to NATS when configured and otherwise drops
// events.
func ProvideEventPublisher(i do.Injector) (events.Publisher, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Events.NATSURL == "" {
		log.Info("Event publishing disabled")
		return events.Noop{}, nil
	}

	pub, err := events.ConnectNATS(cfg.Events.NATSURL, cfg.Events.SubjectPrefix, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	log.Info("Publishing events to NATS", "url", cfg.Events.NATSURL, "prefix", cfg.Events.SubjectPrefix)
	return pub, nil
}
