package apikey

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pixelforegllc/quantummftools-dash/core"
)

// Services
const (
	ServiceZoho    = "zoho"
	ServiceInfobip = "infobip"
)

const (
	DefaultUsageLimit = 10000
	MaxUsageLimit     = 1000000
)

var Services = []string{ServiceZoho, ServiceInfobip}

// PermissionViewUsage lets non-admin users read the usage of keys.
const PermissionViewUsage = "apikeys:usage"

// APIKey is a credential of a third-party service.
// Key holds the plain secret and is only filled when it has to be handed out;
// the database only ever sees Secret, its encrypted form.
type APIKey struct {
	ID          string     `json:"_id"`
	Service     string     `json:"service"`
	Key         string     `json:"apiKey,omitempty"`
	Secret      string     `json:"-"`
	Description string     `json:"description"`
	IsActive    bool       `json:"isActive"`
	UsageLimit  int        `json:"usageLimit"`
	LastUsed    *time.Time `json:"lastUsed,omitempty"` // UTC
	CreatedAt   time.Time  `json:"createdAt"`          // UTC
	UpdatedAt   time.Time  `json:"updatedAt"`          // UTC
}

type NewAPIKey struct {
	Service     string `json:"service" validate:"required,oneof=zoho infobip"`
	Key         string `json:"apiKey" validate:"required"`
	Description string `json:"description" validate:"max=255"`
	IsActive    *bool  `json:"isActive"`
	UsageLimit  *int   `json:"usageLimit" validate:"omitempty,min=1,max=1000000"`
}

func (nk *NewAPIKey) Validate(validate *validator.Validate) error {
	nk.Service = core.CleanString(nk.Service, true /* lower */)
	nk.Key = core.CleanString(nk.Key)
	nk.Description = core.CleanString(nk.Description)
	return validate.Struct(nk)
}

// UpdateAPIKey holds the fields to change; nil fields are left as is.
type UpdateAPIKey struct {
	Service     *string `json:"service" validate:"omitempty,oneof=zoho infobip"`
	Key         *string `json:"apiKey" validate:"omitempty,min=1"`
	Description *string `json:"description" validate:"omitempty,max=255"`
	IsActive    *bool   `json:"isActive"`
	UsageLimit  *int    `json:"usageLimit" validate:"omitempty,min=1,max=1000000"`
}

func (uk *UpdateAPIKey) Validate(validate *validator.Validate) error {
	if uk.Service != nil {
		svc := core.CleanString(*uk.Service, true /* lower */)
		uk.Service = &svc
	}
	if uk.Key != nil {
		key := core.CleanString(*uk.Key)
		uk.Key = &key
	}
	if uk.Description != nil {
		desc := core.CleanString(*uk.Description)
		uk.Description = &desc
	}
	return validate.Struct(uk)
}

// Usage reports how much a key was used over a time range.
type Usage struct {
	Current  int             `json:"current"`
	Limit    int             `json:"limit"`
	Total    int             `json:"total"`
	Timeline []TimelinePoint `json:"timeline"`
}

type TimelinePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count"`
}
