package models

import "time"

// Status names the most recently completed verification milestone.
type Status string

const (
	StatusPhone             Status = "Phone"
	StatusIDCard            Status = "ID card"
	StatusFrontFacingCamera Status = "Front facing camera"
	StatusIDCardImage       Status = "ID card image"
)

// DeriveStatus returns the label of the latest non-nil milestone. Ties go to
// the earlier argument, so the order here is the tie-break order. With no
// milestones at all it reports StatusPhone.
func DeriveStatus(phoneAt, idCardAt, frontFacingCamAt, idCardPhotoAt *time.Time) Status {
	milestones := [...]struct {
		label Status
		at    *time.Time
	}{
		{StatusPhone, phoneAt},
		{StatusIDCard, idCardAt},
		{StatusFrontFacingCamera, frontFacingCamAt},
		{StatusIDCardImage, idCardPhotoAt},
	}

	best := StatusPhone
	var latest *time.Time
	for _, m := range milestones {
		if m.at == nil {
			continue
		}
		if latest == nil || m.at.After(*latest) {
			latest = m.at
			best = m.label
		}
	}
	return best
}
