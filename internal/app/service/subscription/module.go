package subscription

import "go.uber.org/fx"

// registerDrain waits for pending change-log writes on stop. It is invoked
// after the db module, so it runs before the pool is closed.
func registerDrain(lc fx.Lifecycle, s *Service) {
	lc.Append(fx.Hook{OnStop: s.Wait})
}

// Module exposes the subscription reconciler and its gorm stores via Fx.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(NewGormSubscriptionStore, fx.As(new(SubscriptionStore))),
		fx.Annotate(NewGormUserStore, fx.As(new(UserStore))),
		NewService,
	),
	fx.Invoke(registerDrain),
)
