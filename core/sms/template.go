package sms

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/pixelforegllc/quantummftools-dash/core"
)

// Languages
const (
	LanguageEN = "en"
	LanguageES = "es"
	LanguageFR = "fr"
)

const (
	templateNameMinLen    = 3
	templateNameMaxLen    = 100
	templateContentMaxLen = 1600
	senderIDMaxLen        = 11
)

var (
	Languages = []string{LanguageEN, LanguageES, LanguageFR}

	placeholderRegex = regexp.MustCompile(`{{([^}]+)}}`)
	variableKeyRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)
	senderIDRegex    = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
)

type (
	// Variable is a `{{key}}` placeholder of a Template's content.
	Variable struct {
		Name        string `json:"name"`
		Key         string `json:"key"`
		Description string `json:"description,omitempty"`
		Required    bool   `json:"required"`
	}

	// UserRef is the populated form of a User reference.
	UserRef struct {
		ID       string `json:"_id"`
		Username string `json:"username"`
	}

	Template struct {
		ID         string            `json:"_id"`
		Name       string            `json:"name"`
		Content    string            `json:"content"`
		Category   string            `json:"category"`
		Tags       []string          `json:"tags"`
		Variables  []Variable        `json:"variables"`
		IsActive   bool              `json:"isActive"`
		Language   string            `json:"language"`
		SenderID   string            `json:"senderId,omitempty"`
		Metadata   map[string]string `json:"metadata"`
		UsageCount int               `json:"usageCount"`
		LastUsed   *time.Time        `json:"lastUsed,omitempty"` // UTC
		CreatedBy  *UserRef          `json:"createdBy,omitempty"`
		UpdatedBy  *UserRef          `json:"updatedBy,omitempty"`
		CreatedAt  time.Time         `json:"createdAt"` // UTC
		UpdatedAt  time.Time         `json:"updatedAt"` // UTC
	}

	// TemplateData is the writable part of a Template.
	TemplateData struct {
		Name      string            `json:"name"`
		Content   string            `json:"content"`
		Category  string            `json:"category"`
		Tags      []string          `json:"tags"`
		Variables []Variable        `json:"variables"`
		IsActive  *bool             `json:"isActive"`
		Language  string            `json:"language"`
		SenderID  string            `json:"senderId"`
		Metadata  map[string]string `json:"metadata"`
	}

	// PreviewData compiles unsaved content.
	PreviewData struct {
		Content   string            `json:"content"`
		Variables []Variable        `json:"variables"`
		Data      map[string]string `json:"data"`
	}
)

func (d *TemplateData) Clean() {
	d.Name = core.CleanString(d.Name)
	d.Content = core.CleanString(d.Content)
	d.Category = core.CleanString(d.Category)
	d.Tags = core.CleanStrings(d.Tags)
	d.Language = core.CleanString(d.Language, true /* lower */)
	d.SenderID = core.CleanString(d.SenderID)
	for i := range d.Variables {
		d.Variables[i].Name = core.CleanString(d.Variables[i].Name)
		d.Variables[i].Key = core.CleanString(d.Variables[i].Key)
		d.Variables[i].Description = core.CleanString(d.Variables[i].Description)
	}
}

// Validate returns a *core.ValidationError describing the first rule d breaks.
func (d TemplateData) Validate() error {
	if msg := d.validate(); msg != "" {
		return core.NewValidationError(errors.New(msg))
	}
	return nil
}

func (d TemplateData) validate() string {
	if n := utf8.RuneCountInString(d.Name); n < templateNameMinLen || n > templateNameMaxLen {
		return "Invalid template name. Must be between 3 and 100 characters."
	}
	if d.Content == "" || utf8.RuneCountInString(d.Content) > templateContentMaxLen {
		return "Invalid template content. Must not exceed 1600 characters."
	}
	if d.Category == "" {
		return "Invalid category."
	}
	if d.Language != "" && !core.StringInSlice(d.Language, Languages) {
		return "Invalid language code."
	}
	if d.SenderID != "" && (len(d.SenderID) > senderIDMaxLen || !senderIDRegex.MatchString(d.SenderID)) {
		return "Invalid sender ID. Must be alphanumeric and not exceed 11 characters."
	}

	keys := make(map[string]bool, len(d.Variables))
	for _, v := range d.Variables {
		if v.Name == "" || v.Key == "" {
			return "Each variable must have a name and key."
		}
		if keys[v.Key] {
			return "Duplicate variable key: " + v.Key
		}
		keys[v.Key] = true
		if !variableKeyRegex.MatchString(v.Key) {
			return fmt.Sprintf("Invalid variable key format: %s. "+
				"Must start with a letter and contain only letters, numbers, and underscores.", v.Key)
		}
	}

	var undefined []string
	for _, match := range placeholderRegex.FindAllStringSubmatch(d.Content, -1) {
		if !keys[match[1]] {
			undefined = append(undefined, match[0])
		}
	}
	if len(undefined) > 0 {
		return "Undefined variables in content: " + strings.Join(undefined, ", ")
	}

	var unused []string
	for _, v := range d.Variables {
		if !strings.Contains(d.Content, placeholder(v.Key)) {
			unused = append(unused, v.Key)
		}
	}
	if len(unused) > 0 {
		return "Unused variables defined: " + strings.Join(unused, ", ")
	}
	return ""
}

// JoinSearchValues joins vals into the text of a search column, one value per line
// so that a search term cannot match across two values.
func JoinSearchValues(vals []string) string {
	return strings.Join(vals, "\n")
}

func placeholder(key string) string {
	return "{{" + key + "}}"
}

// Preview replaces every variable placeholder with `[<variable name>]`.
func (t Template) Preview() string {
	preview := t.Content
	for _, v := range t.Variables {
		preview = strings.ReplaceAll(preview, placeholder(v.Key), "["+v.Name+"]")
	}
	return preview
}

// ValidateVariables lists the required variables missing (or empty) in data.
func (t Template) ValidateVariables(data map[string]string) []string {
	var errs []string
	for _, v := range t.Variables {
		if v.Required && data[v.Key] == "" {
			errs = append(errs, fmt.Sprintf("Missing required variable: %s (%s)", v.Name, v.Key))
		}
	}
	return errs
}

// Compile substitutes data into the content. Variables missing from data become empty.
func (t Template) Compile(data map[string]string) (string, error) {
	if errs := t.ValidateVariables(data); len(errs) > 0 {
		return "", core.NewValidationError(errors.New("Template validation failed: " + strings.Join(errs, ", ")))
	}

	compiled := t.Content
	for _, v := range t.Variables {
		compiled = strings.ReplaceAll(compiled, placeholder(v.Key), data[v.Key])
	}
	return compiled, nil
}

func (t *Template) RecordUsage(now time.Time) {
	t.UsageCount++
	now = now.UTC()
	t.LastUsed = &now
}

// RequiredKeys returns the keys of the required variables.
func (t Template) RequiredKeys() []string {
	var keys []string
	for _, v := range t.Variables {
		if v.Required {
			keys = append(keys, v.Key)
		}
	}
	return keys
}

// TemplateFilter selects a page of Templates.
type TemplateFilter struct {
	Category  string `query:"category"`
	Language  string `query:"language"`
	Status    string `query:"status"` // active | inactive
	Search    string `query:"search"`
	Page      int    `query:"page"`
	Limit     int    `query:"limit"`
	SortBy    string `query:"sortBy"`
	SortOrder string `query:"sortOrder"`
}

var templateSortFields = map[string]string{
	"createdAt":  "created_at",
	"updatedAt":  "updated_at",
	"name":       "name",
	"category":   "category",
	"usageCount": "usage_count",
	"lastUsed":   "last_used",
}

func (f *TemplateFilter) Clean() {
	f.Category = core.CleanString(f.Category)
	f.Language = core.CleanString(f.Language, true /* lower */)
	f.Status = core.CleanString(f.Status, true /* lower */)
	f.Search = core.CleanString(f.Search)
	if _, ok := templateSortFields[f.SortBy]; !ok {
		f.SortBy = "createdAt"
	}
	if f.SortOrder = core.CleanString(f.SortOrder, true /* lower */); f.SortOrder != "asc" {
		f.SortOrder = "desc"
	}
	page := f.GetPage()
	f.Page, f.Limit = page.Number, page.Size
}

func (f TemplateFilter) GetPage() core.Page {
	p := core.Page{Number: f.Page, Size: f.Limit}
	p.Clean()
	return p
}

// Ordering returns the column ordering; ties are broken by ID to keep pages stable.
func (f TemplateFilter) Ordering() []core.DBOrdering {
	col, ok := templateSortFields[f.SortBy]
	if !ok {
		col = "created_at"
	}
	return []core.DBOrdering{
		{Field: col, Ascending: f.SortOrder == "asc"},
		{Field: "id", Ascending: true},
	}
}

// TemplateStats summarizes every Template.
type TemplateStats struct {
	TotalTemplates    int            `json:"totalTemplates"`
	ActiveTemplates   int            `json:"activeTemplates"`
	TotalUsage        int            `json:"totalUsage"`
	AvgVariables      float64        `json:"avgVariables"`
	CategoryBreakdown map[string]int `json:"categoryBreakdown"`
}

func ComputeTemplateStats(tpls []Template) TemplateStats {
	stats := TemplateStats{CategoryBreakdown: make(map[string]int)}
	var variables int
	for _, t := range tpls {
		stats.TotalTemplates++
		if t.IsActive {
			stats.ActiveTemplates++
		}
		stats.TotalUsage += t.UsageCount
		variables += len(t.Variables)
		stats.CategoryBreakdown[t.Category]++
	}
	if stats.TotalTemplates > 0 {
		stats.AvgVariables = core.Round1(float64(variables) / float64(stats.TotalTemplates))
	}
	return stats
}
