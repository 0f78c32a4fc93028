package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/notemark/notemark/internal/app/api/server"
	notificationhandler "github.com/notemark/notemark/internal/app/service/notification_handler"
	notificationlog "github.com/notemark/notemark/internal/app/service/notification_log"
	"github.com/notemark/notemark/internal/app/service/statistics"
	"github.com/notemark/notemark/internal/app/service/subscription"
	"github.com/notemark/notemark/internal/platform/db"
	"github.com/notemark/notemark/internal/platform/stripe/stripe_api"
	"github.com/notemark/notemark/pkg/config"
	"github.com/notemark/notemark/pkg/logger"
	"github.com/notemark/notemark/pkg/metrics"
)

const (
	DefaultStartTimeout = 15 * time.Second
	// DefaultStopTimeout covers in-flight renewals still waiting on their activation.
	DefaultStopTimeout = 40 * time.Second
)

var Module = fx.Options(
	config.Module,
	logger.Module,
	metrics.Module,
	db.Module,
	stripe_api.Module,
	subscription.Module,
	statistics.Module,
	notificationlog.Module,
	notificationhandler.Module,
	server.Module,
)
