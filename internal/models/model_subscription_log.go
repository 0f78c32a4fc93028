package models

import (
	"time"

	"github.com/notemark/notemark/pkg/types"
	"gorm.io/datatypes"
)

// SubscriptionLog records changes to subscriptions.
// Use case: troubleshooting out-of-order webhook deliveries.
type SubscriptionLog struct {
	ID                     string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	ExternalSubscriptionID string `gorm:"column:external_subscription_id;type:varchar(255);index;not null" json:"external_subscription_id"`
	// Reason is the change reason.
	Reason types.SubscriptionChangeReason `gorm:"column:reason;type:varchar(64);not null" json:"reason"`
	// Before stores the row before the change, null on activation.
	Before datatypes.JSONType[*Subscription] `gorm:"column:before;type:jsonb;default:'null'" json:"before"`
	// After stores the row after the change.
	After datatypes.JSONType[*Subscription] `gorm:"column:after;type:jsonb;default:'null'" json:"after"`
	// Extra stores additional context such as the triggering event id.
	Extra     datatypes.JSONMap `gorm:"column:extra;type:jsonb;default:'{}'" json:"extra"`
	CreatedAt time.Time         `json:"created_at"`
}

func (SubscriptionLog) TableName() string {
	return "subscription_log"
}
