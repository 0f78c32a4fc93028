package models

import (
	"time"

	"github.com/notemark/notemark/pkg/types"
)

// Subscription is the local mirror of one Stripe subscription.
// ExternalSubscriptionID and OwnerUserID are written once at creation.
type Subscription struct {
	ID                     string                   `gorm:"column:id;type:uuid;primary_key" json:"id"`
	ExternalSubscriptionID string                   `gorm:"column:external_subscription_id;type:varchar(255);not null;uniqueIndex" json:"external_subscription_id"`
	OwnerUserID            string                   `gorm:"column:owner_user_id;type:varchar(64);not null;index" json:"owner_user_id"`
	Status                 types.SubscriptionStatus `gorm:"column:status;type:varchar(64);not null" json:"status"`
	PlanID                 string                   `gorm:"column:plan_id;type:varchar(255);not null" json:"plan_id"`
	BillingInterval        string                   `gorm:"column:billing_interval;type:varchar(32)" json:"billing_interval"`
	CurrentPeriodStart     time.Time                `gorm:"column:current_period_start" json:"current_period_start"`
	CurrentPeriodEnd       time.Time                `gorm:"column:current_period_end" json:"current_period_end"`
	// CreatedAt is managed by GORM and records the creation time.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is managed by GORM and records the update time.
	UpdatedAt time.Time `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscription"
}

// Valid reports whether the subscription currently grants access.
func (s *Subscription) Valid(now time.Time) bool {
	return s != nil &&
		s.Status.Entitled() &&
		s.CurrentPeriodEnd.After(now)
}
