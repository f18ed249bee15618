package models

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	dErrors "cashkiosk/pkg/domain-errors"
)

// ComplianceType is the category of check an override record documents.
type ComplianceType string

const (
	ComplianceSMS         ComplianceType = "sms"
	ComplianceIDCardData  ComplianceType = "id_card_data"
	ComplianceIDCardPhoto ComplianceType = "id_card_photo"
	ComplianceFrontCamera ComplianceType = "front_camera"
	ComplianceSanctions   ComplianceType = "sanctions"
	ComplianceAuthorized  ComplianceType = "authorized"
)

// Kind is the value shape a field accepts.
type Kind int

const (
	KindText Kind = iota
	KindTime
	KindBool
	KindOverride
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "string"
	case KindTime:
		return "RFC3339 timestamp"
	case KindBool:
		return "boolean"
	case KindOverride:
		return "non-empty string"
	default:
		return "unknown"
	}
}

// Field declares one updatable customer attribute: its external (JSON) name,
// its storage column and how to read and write it on a Customer.
type Field struct {
	Name   string
	Column string
	Kind   Kind

	// Override is set for reviewer override fields; By is the attribution
	// field the service fills with the acting reviewer.
	Override ComplianceType
	By       *Field

	// internal fields are written by the service only.
	internal bool

	str func(*Customer) **string
	tm  func(*Customer) **time.Time
	bl  func(*Customer) **bool
}

// IsOverride reports whether the field records a reviewer override.
func (f *Field) IsOverride() bool {
	return f.Override != ""
}

func (f *Field) normalize(raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch f.Kind {
	case KindText:
		if s, ok := raw.(string); ok {
			return s, nil
		}
	case KindOverride:
		if s, ok := raw.(string); ok && strings.TrimSpace(s) != "" {
			return s, nil
		}
	case KindBool:
		if b, ok := raw.(bool); ok {
			return b, nil
		}
	case KindTime:
		switch v := raw.(type) {
		case time.Time:
			return v, nil
		case *time.Time:
			if v == nil {
				return nil, nil
			}
			return *v, nil
		case string:
			t, err := time.Parse(time.RFC3339Nano, v)
			if err == nil {
				return t, nil
			}
		}
	}
	return nil, dErrors.New(dErrors.CodeValidation,
		fmt.Sprintf("field %s must be a %s or null", f.Name, f.Kind))
}

func (f *Field) set(c *Customer, v any) {
	switch f.Kind {
	case KindText, KindOverride:
		p := f.str(c)
		if v == nil {
			*p = nil
			return
		}
		s := v.(string)
		*p = &s
	case KindTime:
		p := f.tm(c)
		if v == nil {
			*p = nil
			return
		}
		t := v.(time.Time)
		*p = &t
	case KindBool:
		p := f.bl(c)
		if v == nil {
			*p = nil
			return
		}
		b := v.(bool)
		*p = &b
	}
}

// value reads the field from c as a patch value, nil when unset.
func (f *Field) value(c *Customer) any {
	switch f.Kind {
	case KindTime:
		if t := *f.tm(c); t != nil {
			return *t
		}
	case KindBool:
		if b := *f.bl(c); b != nil {
			return *b
		}
	default:
		if s := *f.str(c); s != nil {
			return *s
		}
	}
	return nil
}

// Dest returns a pointer suitable for sql.Rows.Scan into the field on c.
func (f *Field) Dest(c *Customer) any {
	switch f.Kind {
	case KindTime:
		return f.tm(c)
	case KindBool:
		return f.bl(c)
	default:
		return f.str(c)
	}
}

func (f *Field) copyValue(dst, src *Customer) {
	switch f.Kind {
	case KindText, KindOverride:
		if s := *f.str(src); s != nil {
			v := *s
			*f.str(dst) = &v
		}
	case KindTime:
		if t := *f.tm(src); t != nil {
			v := *t
			*f.tm(dst) = &v
		}
	case KindBool:
		if b := *f.bl(src); b != nil {
			v := *b
			*f.bl(dst) = &v
		}
	}
}

// Registry is the static set of fields a partial update may address.
type Registry struct {
	fields []*Field
	byKey  map[string]*Field
	order  map[*Field]int
}

// NewRegistry indexes fields by JSON name and by column.
func NewRegistry(fields ...*Field) *Registry {
	r := &Registry{
		byKey: make(map[string]*Field, len(fields)*2),
		order: make(map[*Field]int, len(fields)),
	}
	for i, f := range fields {
		r.fields = append(r.fields, f)
		r.byKey[f.Name] = f
		r.byKey[f.Column] = f
		r.order[f] = i
	}
	return r
}

// Fields returns every registered field in declaration order.
func (r *Registry) Fields() []*Field {
	return append([]*Field(nil), r.fields...)
}

// Overrides returns the reviewer override fields.
func (r *Registry) Overrides() []*Field {
	var out []*Field
	for _, f := range r.fields {
		if f.IsOverride() {
			out = append(out, f)
		}
	}
	return out
}

// Lookup resolves a JSON name or a column to its field.
func (r *Registry) Lookup(key string) (*Field, bool) {
	f, ok := r.byKey[key]
	return f, ok
}

// ParsePatch turns an external partial update into a validated Patch. The
// "id" key is dropped; phone, attribution fields and unknown keys are
// rejected, as is any value of the wrong shape.
func (r *Registry) ParsePatch(data map[string]any) (Patch, error) {
	entries := make([]Entry, 0, len(data))
	seen := make(map[*Field]string, len(data))
	for key, raw := range data {
		switch key {
		case "id":
			continue
		case "phone":
			return Patch{}, dErrors.New(dErrors.CodeValidation, "phone cannot be changed")
		}
		f, ok := r.Lookup(key)
		if !ok {
			return Patch{}, dErrors.New(dErrors.CodeValidation, "unknown field: "+key)
		}
		if f.internal {
			return Patch{}, dErrors.New(dErrors.CodeValidation, "field is not writable: "+key)
		}
		if prev, dup := seen[f]; dup {
			return Patch{}, dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("fields %s and %s address the same column", prev, key))
		}
		seen[f] = key
		v, err := f.normalize(raw)
		if err != nil {
			return Patch{}, err
		}
		entries = append(entries, Entry{Field: f, Value: v})
	}
	sort.Slice(entries, func(i, j int) bool {
		return r.order[entries[i].Field] < r.order[entries[j].Field]
	})
	return Patch{entries: entries}, nil
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	override := func(name, column string, ct ComplianceType, ref, byRef func(*Customer) **string) []*Field {
		by := &Field{Name: name + "By", Column: column + "_by", Kind: KindText, internal: true, str: byRef}
		return []*Field{
			{Name: name, Column: column, Kind: KindOverride, Override: ct, By: by, str: ref},
			by,
		}
	}
	text := func(name, column string, ref func(*Customer) **string) *Field {
		return &Field{Name: name, Column: column, Kind: KindText, str: ref}
	}
	timestamp := func(name, column string, ref func(*Customer) **time.Time) *Field {
		return &Field{Name: name, Column: column, Kind: KindTime, tm: ref}
	}

	fields := []*Field{
		text("name", "name", func(c *Customer) **string { return &c.Name }),
		text("idCardData", "id_card_data", func(c *Customer) **string { return &c.IDCardData }),
		text("idCardDataNumber", "id_card_data_number", func(c *Customer) **string { return &c.IDCardDataNumber }),
		timestamp("idCardDataExpiration", "id_card_data_expiration", func(c *Customer) **time.Time { return &c.IDCardDataExpiration }),
		timestamp("idCardAt", "id_card_at", func(c *Customer) **time.Time { return &c.IDCardAt }),
		text("idCardPhotoPath", "id_card_photo_path", func(c *Customer) **string { return &c.IDCardPhotoPath }),
		timestamp("idCardPhotoAt", "id_card_photo_at", func(c *Customer) **time.Time { return &c.IDCardPhotoAt }),
		text("frontFacingCamPath", "front_facing_cam_path", func(c *Customer) **string { return &c.FrontFacingCamPath }),
		timestamp("frontFacingCamAt", "front_facing_cam_at", func(c *Customer) **time.Time { return &c.FrontFacingCamAt }),
		{Name: "sanctions", Column: "sanctions", Kind: KindBool, bl: func(c *Customer) **bool { return &c.Sanctions }},
		timestamp("sanctionsAt", "sanctions_at", func(c *Customer) **time.Time { return &c.SanctionsAt }),
		timestamp("authorizedAt", "authorized_at", func(c *Customer) **time.Time { return &c.AuthorizedAt }),
	}
	fields = append(fields, override("smsOverride", "sms_override", ComplianceSMS,
		func(c *Customer) **string { return &c.SMSOverride },
		func(c *Customer) **string { return &c.SMSOverrideBy })...)
	fields = append(fields, override("idCardDataOverride", "id_card_data_override", ComplianceIDCardData,
		func(c *Customer) **string { return &c.IDCardDataOverride },
		func(c *Customer) **string { return &c.IDCardDataOverrideBy })...)
	fields = append(fields, override("idCardPhotoOverride", "id_card_photo_override", ComplianceIDCardPhoto,
		func(c *Customer) **string { return &c.IDCardPhotoOverride },
		func(c *Customer) **string { return &c.IDCardPhotoOverrideBy })...)
	fields = append(fields, override("frontFacingCamOverride", "front_facing_cam_override", ComplianceFrontCamera,
		func(c *Customer) **string { return &c.FrontFacingCamOverride },
		func(c *Customer) **string { return &c.FrontFacingCamOverrideBy })...)
	fields = append(fields, override("sanctionsCheckOverride", "sanctions_check_override", ComplianceSanctions,
		func(c *Customer) **string { return &c.SanctionsCheckOverride },
		func(c *Customer) **string { return &c.SanctionsCheckOverrideBy })...)
	fields = append(fields, override("authorizedOverride", "authorized_override", ComplianceAuthorized,
		func(c *Customer) **string { return &c.AuthorizedOverride },
		func(c *Customer) **string { return &c.AuthorizedOverrideBy })...)

	return NewRegistry(fields...)
})

// DefaultRegistry is the customer field registry backing the customers table.
func DefaultRegistry() *Registry {
	return defaultRegistry()
}
