package alerting

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// MultiNotifier fans a dispatch out to several named notifiers. The dispatch counts as
// delivered when at least one of them succeeds; individual failures are logged.
type MultiNotifier struct {
	names     []string
	notifiers []Notifier
	logger    zerolog.Logger
}

// NewMultiNotifier creates an empty fan-out.
func NewMultiNotifier(logger zerolog.Logger) *MultiNotifier {
	return &MultiNotifier{logger: logger.With().Str("component", "alert_multi").Logger()}
}

// Add registers a notifier under a channel name.
func (m *MultiNotifier) Add(name string, n Notifier) {
	m.names = append(m.names, name)
	m.notifiers = append(m.notifiers, n)
}

// Len reports the number of channels.
func (m *MultiNotifier) Len() int { return len(m.notifiers) }

// Channels lists the registered channel names.
func (m *MultiNotifier) Channels() []string { return append([]string(nil), m.names...) }

// Notify calls every channel even after a failure.
func (m *MultiNotifier) Notify(ctx context.Context, d Dispatch) error {
	if len(m.notifiers) == 0 {
		return errors.New("no notification channel configured")
	}

	var errs []error
	delivered := 0
	for i, n := range m.notifiers {
		if err := n.Notify(ctx, d); err != nil {
			m.logger.Error().Err(err).Str("channel", m.names[i]).Msg("notification channel failed")
			errs = append(errs, fmt.Errorf("%s: %w", m.names[i], err))
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return errors.Join(errs...)
	}
	return nil
}

var _ Notifier = (*MultiNotifier)(nil)
