package models

import "time"

// User is owned by the account system; billing only reads it to resolve
// the owner of a Stripe customer.
type User struct {
	ID               string    `gorm:"column:id;type:varchar(64);primary_key" json:"id"`
	Email            string    `gorm:"column:email;type:varchar(255)" json:"email"`
	StripeCustomerID *string   `gorm:"column:stripe_customer_id;type:varchar(255);uniqueIndex" json:"stripe_customer_id"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
