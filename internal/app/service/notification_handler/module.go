package notification_handler

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	notificationlog "github.com/notemark/notemark/internal/app/service/notification_log"
	"github.com/notemark/notemark/internal/app/service/subscription"
	"github.com/notemark/notemark/pkg/config"
	"github.com/notemark/notemark/pkg/metrics"
)

func provideNotificationHandler(cfg *config.Config, sub *subscription.Service, notif *notificationlog.Service, m *metrics.ReconcileMetrics, log *zap.SugaredLogger) *NotificationHandler {
	return NewNotificationHandler(cfg, sub, notif, m, log)
}

var Module = fx.Options(
	fx.Provide(provideNotificationHandler),
)
