package alerting

import (
	"context"
	"errors"
	"fmt"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	"github.com/rs/zerolog"
)

// ShoutrrrNotifier forwards the text rendering to any shoutrrr service URL
// (slack://, discord://, ntfy://, ...).
type ShoutrrrNotifier struct {
	sender *router.ServiceRouter
	logger zerolog.Logger
}

// NewShoutrrrNotifier validates the URLs up front.
func NewShoutrrrNotifier(urls []string, logger zerolog.Logger) (*ShoutrrrNotifier, error) {
	if len(urls) == 0 {
		return nil, errors.New("no shoutrrr urls configured")
	}
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, fmt.Errorf("create shoutrrr sender: %w", err)
	}
	return &ShoutrrrNotifier{
		sender: sender,
		logger: logger.With().Str("component", "alert_shoutrrr").Logger(),
	}, nil
}

// Notify sends to every configured service and joins their errors.
func (n *ShoutrrrNotifier) Notify(ctx context.Context, d Dispatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	errs := n.sender.Send(RenderText(d), nil)

	var joined []error
	for _, err := range errs {
		if err != nil {
			joined = append(joined, err)
		}
	}
	if len(joined) > 0 {
		return fmt.Errorf("send shoutrrr notification: %w", errors.Join(joined...))
	}

	n.logger.Info().Int("alerts", len(d.Proposals)).Msg("alert sent (shoutrrr)")
	return nil
}

var _ Notifier = (*ShoutrrrNotifier)(nil)
