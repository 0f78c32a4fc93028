package statistics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/notemark/notemark/internal/models"
	"github.com/notemark/notemark/pkg/types"
)

type StatisticType string

const (
	StatisticTypeCountByStatus             StatisticType = "count_by_status"
	StatisticTypeCountByPlan               StatisticType = "count_by_plan"
	StatisticTypeEntitledCount             StatisticType = "entitled_count"
	StatisticTypeDailyNewSubscriptionCount StatisticType = "daily_new_subscription_count"
	StatisticTypeDailyRenewalCount         StatisticType = "daily_renewal_count"
)

// filterableColumns are the subscription columns a statistic filter may name.
var filterableColumns = []string{"status", "plan_id", "billing_interval", "created_at", "current_period_end"}

type SubscriptionStatisticDataItem struct {
	ID StatisticType `json:"id"`
}

type SubscriptionStatisticRequest struct {
	Filters   []*types.CommonFilter            `json:"filters"`
	DataItems []*SubscriptionStatisticDataItem `json:"data_items"`
}

func (r *SubscriptionStatisticRequest) Validate() error {
	if r == nil || len(r.DataItems) == 0 {
		return fmt.Errorf("data_items required")
	}
	for _, f := range r.Filters {
		if err := f.CheckField(filterableColumns); err != nil {
			return err
		}
	}
	return nil
}

func (r *SubscriptionStatisticRequest) where() clause.Where {
	return clause.Where{Exprs: []clause.Expression{types.FiltersAnd(r.Filters)}}
}

type SubscriptionStatisticResponseDataItem struct {
	Date  string `json:"date,omitempty"`
	Label string `json:"label,omitempty"`
	Value int64  `json:"value"`
}

type SubscriptionStatisticResponse struct {
	DataItems map[StatisticType][]SubscriptionStatisticResponseDataItem `json:"data_items"`
}

type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service { return &Service{db: db} }

func (s *Service) subscriptions(ctx context.Context, request *SubscriptionStatisticRequest) *gorm.DB {
	return s.db.WithContext(ctx).Table(models.Subscription{}.TableName()).Where(request.where())
}

func (s *Service) getCountByStatus(ctx context.Context, request *SubscriptionStatisticRequest) ([]SubscriptionStatisticResponseDataItem, error) {
	var results []SubscriptionStatisticResponseDataItem
	err := s.subscriptions(ctx, request).
		Select("status as label, count(*) as value").
		Group("status").
		Order("label").
		Find(&results).Error
	return results, err
}

func (s *Service) getCountByPlan(ctx context.Context, request *SubscriptionStatisticRequest) ([]SubscriptionStatisticResponseDataItem, error) {
	var results []SubscriptionStatisticResponseDataItem
	err := s.subscriptions(ctx, request).
		Select("plan_id as label, count(*) as value").
		Group("plan_id").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "value"}, Desc: true}).
		Find(&results).Error
	return results, err
}

func (s *Service) getEntitledCount(ctx context.Context, request *SubscriptionStatisticRequest) ([]SubscriptionStatisticResponseDataItem, error) {
	var results []SubscriptionStatisticResponseDataItem
	err := s.subscriptions(ctx, request).
		Select("count(*) as value").
		Where("status IN ?", []types.SubscriptionStatus{types.SubscriptionStatusActive, types.SubscriptionStatusTrialing}).
		Where("current_period_end >= ?", time.Now()).
		Find(&results).Error
	return results, err
}

func (s *Service) getDailyNewSubscriptionCount(ctx context.Context, request *SubscriptionStatisticRequest) ([]SubscriptionStatisticResponseDataItem, error) {
	var results []SubscriptionStatisticResponseDataItem
	err := s.subscriptions(ctx, request).
		Select("TO_CHAR(created_at, 'YYYY-MM-DD') as date, count(*) as value").
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true}).
		Find(&results).Error
	return results, err
}

// getDailyRenewalCount counts applied renewals from the change log. Filters
// do not apply since the log has no subscription columns.
func (s *Service) getDailyRenewalCount(ctx context.Context, _ *SubscriptionStatisticRequest) ([]SubscriptionStatisticResponseDataItem, error) {
	var results []SubscriptionStatisticResponseDataItem
	err := s.db.WithContext(ctx).Table(models.SubscriptionLog{}.TableName()).
		Select("TO_CHAR(created_at, 'YYYY-MM-DD') as date, count(*) as value").
		Where("reason = ?", types.SubscriptionChangeReasonRenew).
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true}).
		Find(&results).Error
	return results, err
}

func (s *Service) getSubscriptionStatistic(ctx context.Context, request *SubscriptionStatisticRequest, dataItem *SubscriptionStatisticDataItem) ([]SubscriptionStatisticResponseDataItem, error) {
	switch dataItem.ID {
	case StatisticTypeCountByStatus:
		return s.getCountByStatus(ctx, request)
	case StatisticTypeCountByPlan:
		return s.getCountByPlan(ctx, request)
	case StatisticTypeEntitledCount:
		return s.getEntitledCount(ctx, request)
	case StatisticTypeDailyNewSubscriptionCount:
		return s.getDailyNewSubscriptionCount(ctx, request)
	case StatisticTypeDailyRenewalCount:
		return s.getDailyRenewalCount(ctx, request)
	default:
		return nil, fmt.Errorf("invalid data item id: %s", dataItem.ID)
	}
}

// GetSubscriptionStatistic computes every requested data item concurrently.
func (s *Service) GetSubscriptionStatistic(ctx context.Context, request *SubscriptionStatisticRequest) (*SubscriptionStatisticResponse, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}

	var mu sync.Mutex
	results := make(map[StatisticType][]SubscriptionStatisticResponseDataItem, len(request.DataItems))
	g, gctx := errgroup.WithContext(ctx)
	for _, item := range lo.UniqBy(request.DataItems, func(di *SubscriptionStatisticDataItem) StatisticType { return di.ID }) {
		item := item
		g.Go(func() error {
			res, err := s.getSubscriptionStatistic(gctx, request, item)
			if err != nil {
				return fmt.Errorf("%s: %w", item.ID, err)
			}
			mu.Lock()
			results[item.ID] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &SubscriptionStatisticResponse{DataItems: results}, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
