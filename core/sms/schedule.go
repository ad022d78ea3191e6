package sms

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/pixelforegllc/quantummftools-dash/core"
)

// Schedule statuses
const (
	StatusDraft      = "draft"
	StatusScheduled  = "scheduled"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusFailed     = "failed"
)

// Recipient statuses
const (
	RecipientPending   = "pending"
	RecipientSent      = "sent"
	RecipientFailed    = "failed"
	RecipientCancelled = "cancelled"
)

const (
	DefaultMaxAttempts  = 3
	DefaultBackoffDelay = 300 // seconds

	minAttempts, maxAttempts         = 1, 5
	minBackoffDelay, maxBackoffDelay = 60, 3600
)

var (
	Statuses          = []string{StatusDraft, StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled, StatusFailed}
	RecipientStatuses = []string{RecipientPending, RecipientSent, RecipientFailed, RecipientCancelled}

	// statuses a request body may set
	writableStatuses = []string{StatusDraft, StatusScheduled}

	scheduledTimeLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
	}
)

type (
	Recipient struct {
		PhoneNumber  string            `json:"phoneNumber"`
		Variables    map[string]string `json:"variables"`
		Status       string            `json:"status"`
		ErrorMessage string            `json:"errorMessage,omitempty"`
		SentAt       *time.Time        `json:"sentAt,omitempty"` // UTC
		AttemptCount int               `json:"attemptCount"`
	}

	// TimeWindow restricts sending to [StartTime, EndTime] (HH:mm) in Timezone.
	TimeWindow struct {
		Enabled   bool   `json:"enabled"`
		Timezone  string `json:"timezone,omitempty"`
		StartTime string `json:"startTime,omitempty"`
		EndTime   string `json:"endTime,omitempty"`
	}

	RetryConfig struct {
		Enabled      bool `json:"enabled"`
		MaxAttempts  int  `json:"maxAttempts"`
		BackoffDelay int  `json:"backoffDelay"` // seconds
	}

	Stats struct {
		Total     int `json:"total"`
		Pending   int `json:"pending"`
		Sent      int `json:"sent"`
		Failed    int `json:"failed"`
		Cancelled int `json:"cancelled"`
	}

	// TemplateRef is the populated form of a Schedule's template.
	TemplateRef struct {
		ID        string     `json:"_id"`
		Name      string     `json:"name,omitempty"`
		Content   string     `json:"content,omitempty"`
		Variables []Variable `json:"variables,omitempty"`
	}

	Schedule struct {
		ID            string            `json:"_id"`
		Name          string            `json:"name"`
		Template      TemplateRef       `json:"template"`
		Status        string            `json:"status"`
		ScheduledTime time.Time         `json:"scheduledTime"` // UTC
		TimeWindow    TimeWindow        `json:"timeWindow"`
		RetryConfig   RetryConfig       `json:"retryConfig"`
		Recipients    []Recipient       `json:"recipients"`
		Metadata      map[string]string `json:"metadata"`
		Stats         Stats             `json:"stats"`
		CreatedBy     *UserRef          `json:"createdBy,omitempty"`
		UpdatedBy     *UserRef          `json:"updatedBy,omitempty"`
		CreatedAt     time.Time         `json:"createdAt"` // UTC
		UpdatedAt     time.Time         `json:"updatedAt"` // UTC
	}
)

// UnmarshalJSON also accepts the legacy `start` and `end` names.
func (tw *TimeWindow) UnmarshalJSON(b []byte) error {
	type window TimeWindow
	var aux struct {
		window
		Start string `json:"start"`
		End   string `json:"end"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*tw = TimeWindow(aux.window)
	if tw.StartTime == "" {
		tw.StartTime = aux.Start
	}
	if tw.EndTime == "" {
		tw.EndTime = aux.End
	}
	return nil
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: DefaultMaxAttempts, BackoffDelay: DefaultBackoffDelay}
}

// Refresh recomputes the stats from the recipients and derives the status from them.
// It must run before every save.
func (s *Schedule) Refresh() {
	stats := Stats{Total: len(s.Recipients)}
	for _, r := range s.Recipients {
		switch r.Status {
		case RecipientPending:
			stats.Pending++
		case RecipientSent:
			stats.Sent++
		case RecipientFailed:
			stats.Failed++
		case RecipientCancelled:
			stats.Cancelled++
		}
	}
	s.Stats = stats

	if s.Status == StatusCancelled || stats.Total == 0 {
		return
	}
	switch {
	case stats.Total == stats.Sent:
		s.Status = StatusCompleted
	case stats.Total == stats.Cancelled:
		s.Status = StatusCancelled
	case stats.Failed > 0 && stats.Pending == 0 && stats.Sent == 0:
		s.Status = StatusFailed
	case stats.Pending < stats.Total && (stats.Sent > 0 || stats.Failed > 0):
		s.Status = StatusInProgress
	}
}

// IsWithinTimeWindow reports whether now falls in the schedule's sending window.
func (s Schedule) IsWithinTimeWindow(now time.Time) bool {
	tw := s.TimeWindow
	if !tw.Enabled {
		return true
	}
	loc, err := time.LoadLocation(tw.Timezone)
	if err != nil {
		return false
	}
	start, end := normalizeHHMM(tw.StartTime), normalizeHHMM(tw.EndTime)
	current := now.In(loc).Format("15:04")
	if start <= end {
		return current >= start && current <= end
	}
	// spans midnight
	return current >= start || current <= end
}

// normalizeHHMM zero-pads the hour so times compare as strings.
func normalizeHHMM(hhmm string) string {
	if len(hhmm) == 4 {
		return "0" + hhmm
	}
	return hhmm
}

// PhoneSearchValue is the search text of the recipients' phone numbers.
func (s Schedule) PhoneSearchValue() string {
	phones := make([]string, 0, len(s.Recipients))
	for _, r := range s.Recipients {
		phones = append(phones, r.PhoneNumber)
	}
	return JoinSearchValues(phones)
}

// ValidateRecipientVariables lists every required template variable absent from a recipient.
// An empty value counts as given.
func (s Schedule) ValidateRecipientVariables(tpl Template) []string {
	required := tpl.RequiredKeys()
	var errs []string
	for i, r := range s.Recipients {
		for _, key := range required {
			if _, ok := r.Variables[key]; !ok {
				errs = append(errs, fmt.Sprintf("Recipient %d (%s) is missing required variable: %s", i+1, r.PhoneNumber, key))
			}
		}
	}
	return errs
}

// Cancel cancels every pending recipient and the schedule itself.
func (s *Schedule) Cancel() {
	for i := range s.Recipients {
		if s.Recipients[i].Status == RecipientPending {
			s.Recipients[i].Status = RecipientCancelled
		}
	}
	s.Status = StatusCancelled
}

func (s Schedule) IsDeletable() bool {
	return s.Status == StatusDraft || s.Status == StatusCancelled
}

func (s Schedule) IsCancellable() bool {
	return s.Status == StatusScheduled || s.Status == StatusInProgress
}

// ScheduleData is the writable part of a Schedule.
type ScheduleData struct {
	Name          string            `json:"name"`
	Template      string            `json:"template"`
	TemplateID    string            `json:"templateId"` // legacy name of Template
	Status        *string           `json:"status"`
	ScheduledTime string            `json:"scheduledTime"`
	TimeWindow    *TimeWindow       `json:"timeWindow"`
	RetryConfig   *RetryConfig      `json:"retryConfig"`
	Recipients    []Recipient       `json:"recipients"`
	Metadata      map[string]string `json:"metadata"`

	scheduledTime time.Time
}

func (d *ScheduleData) Clean() {
	d.Name = core.CleanString(d.Name)
	if d.Template = core.CleanString(d.Template); d.Template == "" {
		d.Template = core.CleanString(d.TemplateID)
	}
	if d.Status != nil {
		status := core.CleanString(*d.Status, true /* lower */)
		d.Status = &status
	}
	d.ScheduledTime = core.CleanString(d.ScheduledTime)
	for i := range d.Recipients {
		r := &d.Recipients[i]
		r.PhoneNumber = core.CleanString(r.PhoneNumber)
		if r.Status = core.CleanString(r.Status, true /* lower */); r.Status == "" {
			r.Status = RecipientPending
		}
		if r.Variables == nil {
			r.Variables = make(map[string]string)
		}
	}
	if tw := d.TimeWindow; tw != nil {
		tw.Timezone = core.CleanString(tw.Timezone)
		tw.StartTime = core.CleanString(tw.StartTime)
		tw.EndTime = core.CleanString(tw.EndTime)
	}
	if rc := d.RetryConfig; rc != nil && !rc.Enabled {
		if rc.MaxAttempts == 0 {
			rc.MaxAttempts = DefaultMaxAttempts
		}
		if rc.BackoffDelay == 0 {
			rc.BackoffDelay = DefaultBackoffDelay
		}
	}
}

// Validate returns a *core.ValidationError describing the first rule d breaks.
// Scheduled times must be after now.
func (d *ScheduleData) Validate(now time.Time) error {
	if msg := d.validate(now); msg != "" {
		return core.NewValidationError(errors.New(msg))
	}
	return nil
}

func (d *ScheduleData) validate(now time.Time) string {
	if d.Name == "" {
		return "Schedule name is required."
	}
	if d.Template == "" {
		return "Invalid template ID."
	}
	if d.Status != nil && !core.StringInSlice(*d.Status, writableStatuses) {
		return "Invalid status. Must be draft or scheduled."
	}
	if len(d.Recipients) == 0 {
		return "Recipients must be a non-empty array."
	}
	for _, r := range d.Recipients {
		if !core.IsValidPhoneNumber(r.PhoneNumber) {
			return "Invalid phone number format: " + r.PhoneNumber
		}
		if !core.StringInSlice(r.Status, RecipientStatuses) {
			return "Invalid recipient status: " + r.Status
		}
	}

	st, ok := parseScheduledTime(d.ScheduledTime)
	if !ok {
		return "Invalid scheduled time."
	}
	if !st.After(now) {
		return "Scheduled time must be in the future."
	}
	d.scheduledTime = st

	if tw := d.TimeWindow; tw != nil && tw.Enabled {
		if tw.StartTime == "" || tw.EndTime == "" || tw.Timezone == "" {
			return "Time window must include start, end, and timezone."
		}
		if !core.IsValidHHMM(tw.StartTime) || !core.IsValidHHMM(tw.EndTime) {
			return "Invalid time window format. Use HH:mm format."
		}
		if !core.IsValidTimezone(tw.Timezone) {
			return "Invalid timezone."
		}
	}

	if rc := d.RetryConfig; rc != nil && rc.Enabled {
		if rc.MaxAttempts < minAttempts || rc.MaxAttempts > maxAttempts {
			return "Max attempts must be between 1 and 5."
		}
		if rc.BackoffDelay < minBackoffDelay || rc.BackoffDelay > maxBackoffDelay {
			return "Backoff delay must be between 60 and 3600 seconds."
		}
	}
	return ""
}

// parseScheduledTime accepts RFC 3339 and the zone-less forms browsers send (read as UTC).
func parseScheduledTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range scheduledTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// apply copies d onto s. d must have been validated.
func (d ScheduleData) apply(s *Schedule) {
	s.Name = d.Name
	if s.Template.ID != d.Template {
		s.Template = TemplateRef{ID: d.Template}
	}
	if d.Status != nil {
		s.Status = *d.Status
	}
	s.ScheduledTime = d.scheduledTime
	if d.TimeWindow != nil {
		s.TimeWindow = *d.TimeWindow
	}
	if d.RetryConfig != nil {
		s.RetryConfig = *d.RetryConfig
	}
	s.Recipients = d.Recipients
	if d.Metadata != nil {
		s.Metadata = d.Metadata
	}
}

// ScheduleFilter selects a page of Schedules.
type ScheduleFilter struct {
	Status    string     `query:"status"`
	Template  string     `query:"template"`
	Search    string     `query:"search"`
	StartDate *time.Time `query:"-"`
	EndDate   *time.Time `query:"-"`
	Page      int        `query:"page"`
	Limit     int        `query:"limit"`
	SortBy    string     `query:"sortBy"`
	SortOrder string     `query:"sortOrder"`
}

var scheduleSortFields = map[string]string{
	"scheduledTime": "scheduled_time",
	"createdAt":     "created_at",
	"updatedAt":     "updated_at",
	"name":          "name",
	"status":        "status",
}

// ParseDateBounds sets StartDate and EndDate from their query values.
func (f *ScheduleFilter) ParseDateBounds(start, end string) error {
	if start = strings.TrimSpace(start); start != "" {
		t, ok := parseScheduledTime(start)
		if !ok {
			return core.NewValidationError(errors.New("Invalid startDate."))
		}
		f.StartDate = &t
	}
	if end = strings.TrimSpace(end); end != "" {
		t, ok := parseScheduledTime(end)
		if !ok {
			return core.NewValidationError(errors.New("Invalid endDate."))
		}
		f.EndDate = &t
	}
	return nil
}

func (f *ScheduleFilter) Clean() {
	f.Status = core.CleanString(f.Status, true /* lower */)
	f.Template = core.CleanString(f.Template)
	f.Search = core.CleanString(f.Search)
	if _, ok := scheduleSortFields[f.SortBy]; !ok {
		f.SortBy = "scheduledTime"
	}
	if f.SortOrder = core.CleanString(f.SortOrder, true /* lower */); f.SortOrder != "desc" {
		f.SortOrder = "asc"
	}
	page := f.GetPage()
	f.Page, f.Limit = page.Number, page.Size
}

func (f ScheduleFilter) GetPage() core.Page {
	p := core.Page{Number: f.Page, Size: f.Limit}
	p.Clean()
	return p
}

func (f ScheduleFilter) Ordering() []core.DBOrdering {
	col, ok := scheduleSortFields[f.SortBy]
	if !ok {
		col = "scheduled_time"
	}
	return []core.DBOrdering{
		{Field: col, Ascending: f.SortOrder != "desc"},
		{Field: "id", Ascending: true},
	}
}

// ScheduleStats summarizes every Schedule.
type ScheduleStats struct {
	TotalSchedules      int     `json:"totalSchedules"`
	CompletedSchedules  int     `json:"completedSchedules"`
	InProgressSchedules int     `json:"inProgressSchedules"`
	FailedSchedules     int     `json:"failedSchedules"`
	TotalMessages       int     `json:"totalMessages"`
	SentMessages        int     `json:"sentMessages"`
	FailedMessages      int     `json:"failedMessages"`
	AverageRecipients   float64 `json:"averageRecipients"`
	SuccessRate         float64 `json:"successRate"`
}

func ComputeScheduleStats(schedules []Schedule) ScheduleStats {
	var stats ScheduleStats
	for _, s := range schedules {
		stats.TotalSchedules++
		switch s.Status {
		case StatusCompleted:
			stats.CompletedSchedules++
		case StatusInProgress:
			stats.InProgressSchedules++
		case StatusFailed:
			stats.FailedSchedules++
		}
		stats.TotalMessages += s.Stats.Total
		stats.SentMessages += s.Stats.Sent
		stats.FailedMessages += s.Stats.Failed
	}
	if stats.TotalSchedules > 0 {
		stats.AverageRecipients = core.Round1(float64(stats.TotalMessages) / float64(stats.TotalSchedules))
	}
	if stats.TotalMessages > 0 {
		stats.SuccessRate = core.Round1(float64(stats.SentMessages) / float64(stats.TotalMessages) * 100)
	}
	return stats
}
