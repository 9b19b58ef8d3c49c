package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shop-rank-tracker/internal/alerting"
	"shop-rank-tracker/internal/service"
)

// SimulateAlert sends the sample improved-by-seven notification through every
// configured channel without touching the alert log. With dryRun the rendered
// text is printed instead.
func (a *App) SimulateAlert(ctx context.Context, dryRun bool) error {
	if dryRun {
		fmt.Fprintln(a.Out, alerting.RenderText(service.SampleDispatch(time.Now().In(a.Config.Location()))))
		return nil
	}

	notifier, err := a.newNotifier()
	if err != nil {
		return err
	}
	if notifier == nil {
		return errors.New("no notification channel configured")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := a.newService(store, nil)
	if err != nil {
		return err
	}
	if err := svc.SendTestNotification(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.Out, "test notification sent")
	return nil
}
