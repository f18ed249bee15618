package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "cashkiosk/pkg/domain-errors"
)

func TestParsePatch_Normalization(t *testing.T) {
	reg := DefaultRegistry()

	t.Run("accepts json names and columns and drops id", func(t *testing.T) {
		patch, err := reg.ParsePatch(map[string]any{
			"id":                     "ignored",
			"frontFacingCamOverride": "ok",
			"id_card_at":             "2026-05-04T10:00:00Z",
			"sanctions":              false,
			"name":                   nil,
		})
		require.NoError(t, err)
		assert.ElementsMatch(t,
			[]string{"front_facing_cam_override", "id_card_at", "sanctions", "name"},
			patch.Columns())

		v, ok := patch.Value("id_card_at")
		require.True(t, ok)
		assert.Equal(t, time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC), v)

		v, ok = patch.Value("name")
		require.True(t, ok)
		assert.Nil(t, v)
	})

	t.Run("entries follow registry order", func(t *testing.T) {
		patch, err := reg.ParsePatch(map[string]any{
			"authorizedOverride": "verified",
			"name":               "Ana",
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"name", "authorized_override"}, patch.Columns())
	})

	t.Run("empty after dropping id", func(t *testing.T) {
		patch, err := reg.ParsePatch(map[string]any{"id": "x"})
		require.NoError(t, err)
		assert.True(t, patch.Empty())
	})
}

func TestParsePatch_Rejections(t *testing.T) {
	reg := DefaultRegistry()
	tests := []struct {
		name string
		data map[string]any
	}{
		{"unknown field", map[string]any{"favouriteColour": "blue"}},
		{"phone is immutable", map[string]any{"phone": "+15550001111"}},
		{"attribution is service-owned", map[string]any{"smsOverrideBy": "mallory"}},
		{"attribution column is service-owned", map[string]any{"sms_override_by": "mallory"}},
		{"override must be a string", map[string]any{"sanctionsCheckOverride": map[string]any{"status": "ok"}}},
		{"override must not be empty", map[string]any{"authorizedOverride": ""}},
		{"override must not be blank", map[string]any{"smsOverride": "  "}},
		{"timestamp must parse", map[string]any{"idCardAt": "yesterday"}},
		{"bool must be bool", map[string]any{"sanctions": "no"}},
		{"text must be text", map[string]any{"name": 12.5}},
		{"same column twice", map[string]any{"idCardAt": nil, "id_card_at": nil}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.ParsePatch(tt.data)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func TestPatch_OverridesAndAttribution(t *testing.T) {
	reg := DefaultRegistry()
	patch, err := reg.ParsePatch(map[string]any{
		"frontFacingCamOverride": "ok",
		"smsOverride":            nil,
		"idCardAt":               "2026-05-04T10:00:00Z",
	})
	require.NoError(t, err)

	overrides := patch.Overrides()
	require.Len(t, overrides, 1)
	assert.Equal(t, ComplianceFrontCamera, overrides[0].Field.Override)
	assert.Equal(t, "ok", overrides[0].Value)

	t.Run("actor adds one attribution column per set override", func(t *testing.T) {
		attributed := patch.WithAttribution("user-42")
		v, ok := attributed.Value("front_facing_cam_override_by")
		require.True(t, ok)
		assert.Equal(t, "user-42", v)
		_, ok = attributed.Value("sms_override_by")
		assert.False(t, ok)
		// the original patch is untouched
		_, ok = patch.Value("front_facing_cam_override_by")
		assert.False(t, ok)
	})

	t.Run("no actor adds nothing", func(t *testing.T) {
		assert.Equal(t, patch.Columns(), patch.WithAttribution("").Columns())
	})
}

func TestPatch_Apply(t *testing.T) {
	reg := DefaultRegistry()
	name := "Old"
	c := &Customer{Name: &name, Phone: "+15550001111"}

	patch, err := reg.ParsePatch(map[string]any{
		"name":                   nil,
		"sanctions":              true,
		"frontFacingCamOverride": "ok",
	})
	require.NoError(t, err)
	patch.WithAttribution("user-42").Apply(c)

	assert.Nil(t, c.Name)
	require.NotNil(t, c.Sanctions)
	assert.True(t, *c.Sanctions)
	require.NotNil(t, c.FrontFacingCamOverride)
	assert.Equal(t, "ok", *c.FrontFacingCamOverride)
	require.NotNil(t, c.FrontFacingCamOverrideBy)
	assert.Equal(t, "user-42", *c.FrontFacingCamOverrideBy)
	assert.Equal(t, "+15550001111", c.Phone)
}

func TestCustomerCloneIsDeep(t *testing.T) {
	now := time.Now()
	override := "ok"
	orig := &Customer{PhoneAt: &now, IDCardAt: &now, SMSOverride: &override}

	cp := orig.Clone()
	*cp.SMSOverride = "changed"
	*cp.IDCardAt = now.Add(time.Hour)
	*cp.PhoneAt = now.Add(time.Hour)

	assert.Equal(t, "ok", *orig.SMSOverride)
	assert.Equal(t, now, *orig.IDCardAt)
	assert.Equal(t, now, *orig.PhoneAt)
	assert.Nil(t, (*Customer)(nil).Clone())
}

func TestRegistryOverrides(t *testing.T) {
	types := map[ComplianceType]string{}
	for _, f := range DefaultRegistry().Overrides() {
		types[f.Override] = f.Column
		require.NotNil(t, f.By)
		assert.Equal(t, f.Column+"_by", f.By.Column)
	}
	assert.Equal(t, map[ComplianceType]string{
		ComplianceSMS:         "sms_override",
		ComplianceIDCardData:  "id_card_data_override",
		ComplianceIDCardPhoto: "id_card_photo_override",
		ComplianceFrontCamera: "front_facing_cam_override",
		ComplianceSanctions:   "sanctions_check_override",
		ComplianceAuthorized:  "authorized_override",
	}, types)
}

func TestPatch_RevertRestoresTouchedColumns(t *testing.T) {
	reg := DefaultRegistry()
	name := "Ada"
	seen := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	before := &Customer{Name: &name, IDCardAt: &seen}

	patch, err := reg.ParsePatch(map[string]any{
		"name":        "Grace",
		"idCardAt":    nil,
		"smsOverride": "ok",
	})
	require.NoError(t, err)
	patch = patch.WithAttribution("user-42")

	after := before.Clone()
	patch.Apply(after)
	patch.Revert(before).Apply(after)

	require.NotNil(t, after.Name)
	assert.Equal(t, "Ada", *after.Name)
	require.NotNil(t, after.IDCardAt)
	assert.True(t, seen.Equal(*after.IDCardAt))
	assert.Nil(t, after.SMSOverride)
	assert.Nil(t, after.SMSOverrideBy)
	assert.Equal(t, patch.Columns(), patch.Revert(before).Columns())
}
