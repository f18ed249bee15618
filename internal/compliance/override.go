// Package compliance records reviewer overrides of automated compliance
// checks. Every override value written onto a customer gets one append-only
// audit record naming the reviewer who set it.
package compliance

import (
	"time"

	"github.com/google/uuid"

	"cashkiosk/internal/customer/models"
)

// Override is the audit record for one override field set in one update.
// OverrideBy is nil for system-initiated updates.
type Override struct {
	ID             uuid.UUID             `json:"id"`
	CustomerID     uuid.UUID             `json:"customerId"`
	ComplianceType models.ComplianceType `json:"complianceType"`
	OverrideBy     *string               `json:"overrideBy"`
	Verification   string                `json:"verification"`
	CreatedAt      time.Time             `json:"createdAt"`
}

// Detect builds the audit records a patch calls for: one per override field
// present with a value. Attribution columns are ignored, so callers may pass
// the patch before or after attribution.
func Detect(customerID uuid.UUID, patch models.Patch, actor string, now time.Time) []*Override {
	var overrideBy *string
	if actor != "" {
		overrideBy = &actor
	}

	var out []*Override
	for _, e := range patch.Overrides() {
		verification, _ := e.Value.(string)
		out = append(out, &Override{
			ID:             uuid.New(),
			CustomerID:     customerID,
			ComplianceType: e.Field.Override,
			OverrideBy:     overrideBy,
			Verification:   verification,
			CreatedAt:      now,
		})
	}
	return out
}

// EventOverrideRecorded is the outbox event type for override audit records.
const EventOverrideRecorded = "compliance.override_recorded"
