package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Customer is a kiosk customer with its compliance milestones and reviewer
// overrides. Status and DailyVolume are derived on read and never stored.
type Customer struct {
	ID        uuid.UUID  `json:"id"`
	Phone     string     `json:"phone"`
	PhoneAt   *time.Time `json:"phoneAt"`
	CreatedAt time.Time  `json:"createdAt"`

	Name                 *string    `json:"name"`
	IDCardData           *string    `json:"idCardData"`
	IDCardDataNumber     *string    `json:"idCardDataNumber"`
	IDCardDataExpiration *time.Time `json:"idCardDataExpiration"`
	IDCardAt             *time.Time `json:"idCardAt"`
	IDCardPhotoPath      *string    `json:"idCardPhotoPath"`
	IDCardPhotoAt        *time.Time `json:"idCardPhotoAt"`
	FrontFacingCamPath   *string    `json:"frontFacingCamPath"`
	FrontFacingCamAt     *time.Time `json:"frontFacingCamAt"`
	Sanctions            *bool      `json:"sanctions"`
	SanctionsAt          *time.Time `json:"sanctionsAt"`
	AuthorizedAt         *time.Time `json:"authorizedAt"`

	SMSOverride              *string `json:"smsOverride"`
	SMSOverrideBy            *string `json:"smsOverrideBy"`
	IDCardDataOverride       *string `json:"idCardDataOverride"`
	IDCardDataOverrideBy     *string `json:"idCardDataOverrideBy"`
	IDCardPhotoOverride      *string `json:"idCardPhotoOverride"`
	IDCardPhotoOverrideBy    *string `json:"idCardPhotoOverrideBy"`
	FrontFacingCamOverride   *string `json:"frontFacingCamOverride"`
	FrontFacingCamOverrideBy *string `json:"frontFacingCamOverrideBy"`
	SanctionsCheckOverride   *string `json:"sanctionsCheckOverride"`
	SanctionsCheckOverrideBy *string `json:"sanctionsCheckOverrideBy"`
	AuthorizedOverride       *string `json:"authorizedOverride"`
	AuthorizedOverrideBy     *string `json:"authorizedOverrideBy"`

	Status      Status           `json:"status,omitempty"`
	DailyVolume *decimal.Decimal `json:"dailyVolume,omitempty"`
}

// NewCustomer is the input to customer creation.
type NewCustomer struct {
	Phone string `json:"phone" validate:"required,min=5,max=32"`
}

// Clone returns a deep copy so stores can hand out records without sharing
// pointers into their own state.
func (c *Customer) Clone() *Customer {
	if c == nil {
		return nil
	}
	out := *c
	for _, f := range DefaultRegistry().Fields() {
		f.copyValue(&out, c)
	}
	out.PhoneAt = cloneTime(c.PhoneAt)
	if c.DailyVolume != nil {
		v := *c.DailyVolume
		out.DailyVolume = &v
	}
	return &out
}

// WithStatus sets the derived status label.
func (c *Customer) WithStatus() *Customer {
	c.Status = DeriveStatus(c.PhoneAt, c.IDCardAt, c.FrontFacingCamAt, c.IDCardPhotoAt)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
