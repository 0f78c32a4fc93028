package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/notemark/notemark/internal/models"
	"github.com/notemark/notemark/pkg/types"
)

// SubscriptionStore persists subscription rows keyed on the external id.
type SubscriptionStore interface {
	// CreateIfAbsent inserts sub unless a row with the same external id
	// exists. It reports whether a row was written.
	CreateIfAbsent(ctx context.Context, sub *models.Subscription) (bool, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.Subscription, error)
	UpdateByExternalID(ctx context.Context, externalID string, upd *Update) error
	SaveLog(ctx context.Context, entry *models.SubscriptionLog) error
	List(ctx context.Context, req *ListRequest) (*ListResponse, error)
}

// UserStore resolves users owned by the account system.
type UserStore interface {
	FindByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error)
}

// Update holds the only columns a renewal may change.
type Update struct {
	Status             types.SubscriptionStatus
	PlanID             string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
}

type ListRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ListResponse struct {
	Items []*models.Subscription `json:"items"`
	Total int64                  `json:"total"`
}

type GormSubscriptionStore struct {
	db *gorm.DB
}

func NewGormSubscriptionStore(db *gorm.DB) *GormSubscriptionStore {
	return &GormSubscriptionStore{db: db}
}

func (s *GormSubscriptionStore) CreateIfAbsent(ctx context.Context, sub *models.Subscription) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "external_subscription_id"}}, DoNothing: true}).
		Create(sub)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create subscription: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormSubscriptionStore) FindByExternalID(ctx context.Context, externalID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).Where("external_subscription_id = ?", externalID).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return &sub, nil
}

func (s *GormSubscriptionStore) UpdateByExternalID(ctx context.Context, externalID string, upd *Update) error {
	res := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("external_subscription_id = ?", externalID).
		Updates(map[string]any{
			"status":               upd.Status,
			"plan_id":              upd.PlanID,
			"current_period_start": upd.CurrentPeriodStart,
			"current_period_end":   upd.CurrentPeriodEnd,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update subscription: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errSubscriptionNotFound
	}
	return nil
}

func (s *GormSubscriptionStore) SaveLog(ctx context.Context, entry *models.SubscriptionLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *GormSubscriptionStore) List(ctx context.Context, req *ListRequest) (*ListResponse, error) {
	tx := s.db.WithContext(ctx).Model(&models.Subscription{})
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{types.FiltersAnd(req.Filters)}})
	}
	tx = tx.Session(&gorm.Session{})

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count subscriptions: %w", err)
	}

	q := tx.Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	if req.SortBy != "" {
		q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: req.SortBy}, Desc: req.SortOrder != "asc"}}})
	}

	var rows []*models.Subscription
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return &ListResponse{Items: rows, Total: total}, nil
}

type GormUserStore struct {
	db *gorm.DB
}

func NewGormUserStore(db *gorm.DB) *GormUserStore {
	return &GormUserStore{db: db}
}

func (s *GormUserStore) FindByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("stripe_customer_id = ?", customerID).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, customerID)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}
