package sms

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelforegllc/quantummftools-dash/core"
)

func validTemplateData() TemplateData {
	return TemplateData{
		Name:     "Welcome",
		Content:  "Hi {{first_name}}, your code is {{code}}.",
		Category: "onboarding",
		Variables: []Variable{
			{Name: "First name", Key: "first_name", Required: true},
			{Name: "Code", Key: "code"},
		},
	}
}

func TestTemplateData_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(d *TemplateData)
		wantErr string
	}{
		{name: "valid", mutate: func(d *TemplateData) {}},
		{
			name:    "name too short",
			mutate:  func(d *TemplateData) { d.Name = "ab" },
			wantErr: "Invalid template name. Must be between 3 and 100 characters.",
		},
		{
			name:    "name too long",
			mutate:  func(d *TemplateData) { d.Name = strings.Repeat("a", 101) },
			wantErr: "Invalid template name. Must be between 3 and 100 characters.",
		},
		{
			name:    "empty content",
			mutate:  func(d *TemplateData) { d.Content = "" },
			wantErr: "Invalid template content. Must not exceed 1600 characters.",
		},
		{
			name: "content too long",
			mutate: func(d *TemplateData) {
				d.Content = strings.Repeat("x", 1600) + "{{first_name}}{{code}}"
			},
			wantErr: "Invalid template content. Must not exceed 1600 characters.",
		},
		{
			name:    "missing category",
			mutate:  func(d *TemplateData) { d.Category = "" },
			wantErr: "Invalid category.",
		},
		{
			name:    "bad language",
			mutate:  func(d *TemplateData) { d.Language = "de" },
			wantErr: "Invalid language code.",
		},
		{
			name:    "sender id too long",
			mutate:  func(d *TemplateData) { d.SenderID = "QuantumMFTools" },
			wantErr: "Invalid sender ID. Must be alphanumeric and not exceed 11 characters.",
		},
		{
			name:    "sender id not alphanumeric",
			mutate:  func(d *TemplateData) { d.SenderID = "Quantum-MF" },
			wantErr: "Invalid sender ID. Must be alphanumeric and not exceed 11 characters.",
		},
		{
			name:    "variable without key",
			mutate:  func(d *TemplateData) { d.Variables[1].Key = "" },
			wantErr: "Each variable must have a name and key.",
		},
		{
			name:    "duplicate key",
			mutate:  func(d *TemplateData) { d.Variables[1].Key = "first_name" },
			wantErr: "Duplicate variable key: first_name",
		},
		{
			name: "bad key format",
			mutate: func(d *TemplateData) {
				d.Variables[1].Key = "1code"
				d.Content = "Hi {{first_name}}, your code is {{1code}}."
			},
			wantErr: "Invalid variable key format: 1code. " +
				"Must start with a letter and contain only letters, numbers, and underscores.",
		},
		{
			name:    "undefined placeholders",
			mutate:  func(d *TemplateData) { d.Content += " {{amount}} {{due date}}" },
			wantErr: "Undefined variables in content: {{amount}}, {{due date}}",
		},
		{
			name: "unused variables",
			mutate: func(d *TemplateData) {
				d.Content = "Hello there"
			},
			wantErr: "Unused variables defined: first_name, code",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validTemplateData()
			tt.mutate(&d)
			err := d.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.IsType(t, &core.ValidationError{}, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestTemplateData_Clean(t *testing.T) {
	d := TemplateData{
		Name:      "  Welcome ",
		Language:  " FR ",
		Tags:      []string{" promo ", "", "vip"},
		Variables: []Variable{{Name: " Code ", Key: " code "}},
	}
	d.Clean()
	assert.Equal(t, "Welcome", d.Name)
	assert.Equal(t, "fr", d.Language)
	assert.Equal(t, []string{"promo", "vip"}, d.Tags)
	assert.Equal(t, Variable{Name: "Code", Key: "code"}, d.Variables[0])
}

func TestTemplate_Preview(t *testing.T) {
	tpl := Template{
		Content: "Hi {{first_name}}, {{first_name}} owes {{amount}}. {{other}}",
		Variables: []Variable{
			{Name: "First name", Key: "first_name"},
			{Name: "Amount", Key: "amount"},
		},
	}
	assert.Equal(t, "Hi [First name], [First name] owes [Amount]. {{other}}", tpl.Preview())
}

func TestTemplate_Compile(t *testing.T) {
	tpl := Template{
		Content: "Hi {{first_name}}, pay {{amount}} {{currency}}.",
		Variables: []Variable{
			{Name: "First name", Key: "first_name", Required: true},
			{Name: "Amount", Key: "amount", Required: true},
			{Name: "Currency", Key: "currency"},
		},
	}

	got, err := tpl.Compile(map[string]string{"first_name": "Ada", "amount": "10", "currency": "EUR"})
	require.NoError(t, err)
	assert.Equal(t, "Hi Ada, pay 10 EUR.", got)

	got, err = tpl.Compile(map[string]string{"first_name": "Ada", "amount": "10"})
	require.NoError(t, err)
	assert.Equal(t, "Hi Ada, pay 10 .", got, "optional variables default to empty")

	_, err = tpl.Compile(map[string]string{"amount": ""})
	require.Error(t, err)
	assert.Equal(t, "Template validation failed: "+
		"Missing required variable: First name (first_name), Missing required variable: Amount (amount)", err.Error())
}

func TestTemplate_RecordUsage(t *testing.T) {
	var tpl Template
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.FixedZone("WAT", 3600))
	tpl.RecordUsage(now)
	tpl.RecordUsage(now)
	assert.Equal(t, 2, tpl.UsageCount)
	require.NotNil(t, tpl.LastUsed)
	assert.Equal(t, time.UTC, tpl.LastUsed.Location())
	assert.True(t, tpl.LastUsed.Equal(now))
}

func TestJoinSearchValues(t *testing.T) {
	tests := []struct {
		vals []string
		want string
	}{
		{nil, ""},
		{[]string{"vip"}, "vip"},
		{[]string{"vip", "billing"}, "vip\nbilling"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, JoinSearchValues(tt.vals))
	}
}

func TestTemplateFilter_Clean(t *testing.T) {
	f := TemplateFilter{SortBy: "password", SortOrder: "ASC", Limit: 1000, Status: " Active "}
	f.Clean()
	assert.Equal(t, "createdAt", f.SortBy)
	assert.Equal(t, "asc", f.SortOrder)
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, core.MaxPageSize, f.Limit)
	assert.Equal(t, "active", f.Status)
	assert.Equal(t, []core.DBOrdering{{Field: "created_at", Ascending: true}, {Field: "id", Ascending: true}}, f.Ordering())

	f = TemplateFilter{SortBy: "usageCount"}
	f.Clean()
	assert.Equal(t, "desc", f.SortOrder)
	assert.Equal(t, "usage_count DESC", f.Ordering()[0].String())
}

func TestComputeTemplateStats(t *testing.T) {
	assert.Equal(t, TemplateStats{CategoryBreakdown: map[string]int{}}, ComputeTemplateStats(nil))

	stats := ComputeTemplateStats([]Template{
		{Category: "promo", IsActive: true, UsageCount: 3, Variables: make([]Variable, 2)},
		{Category: "promo", UsageCount: 1},
		{Category: "alerts", IsActive: true, Variables: make([]Variable, 2)},
	})
	assert.Equal(t, TemplateStats{
		TotalTemplates:    3,
		ActiveTemplates:   2,
		TotalUsage:        4,
		AvgVariables:      1.3,
		CategoryBreakdown: map[string]int{"promo": 2, "alerts": 1},
	}, stats)
}
