package notification_log

import (
	"context"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/notemark/notemark/internal/models"
	"github.com/notemark/notemark/pkg/logctx"
	"github.com/notemark/notemark/pkg/tool"
)

type Service struct {
	db      *gorm.DB
	log     *zap.SugaredLogger
	pending sync.WaitGroup
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// Save asynchronously persists a payment notification log. Nil input is ignored.
func (s *Service) Save(ctx context.Context, log *models.PaymentNotificationLog) {
	if log == nil {
		return
	}
	if log.ID == "" {
		log.ID = tool.GenerateUUIDV7()
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.db.WithContext(context.WithoutCancel(ctx)).Create(log).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorw("failed to save notification log", "event_id", log.EventID, "status", log.Status, "error", err.Error())
		}
	}()
}

// Wait blocks until in-flight writes finish or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func registerDrain(lc fx.Lifecycle, s *Service) {
	lc.Append(fx.Hook{OnStop: s.Wait})
}

var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(registerDrain),
)
