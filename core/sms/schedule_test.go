package sms

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func validScheduleData() ScheduleData {
	return ScheduleData{
		Name:          "May campaign",
		Template:      "tpl-1",
		ScheduledTime: "2024-05-11T09:00:00Z",
		Recipients: []Recipient{
			{PhoneNumber: "+2348012345678", Variables: map[string]string{"first_name": "Ada"}},
		},
	}
}

func TestScheduleData_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(d *ScheduleData)
		wantErr string
	}{
		{name: "valid", mutate: func(d *ScheduleData) {}},
		{
			name:    "missing name",
			mutate:  func(d *ScheduleData) { d.Name = "" },
			wantErr: "Schedule name is required.",
		},
		{
			name:    "missing template",
			mutate:  func(d *ScheduleData) { d.Template = "" },
			wantErr: "Invalid template ID.",
		},
		{
			name:    "legacy template id",
			mutate:  func(d *ScheduleData) { d.Template, d.TemplateID = "", "tpl-1" },
			wantErr: "",
		},
		{
			name:    "bad status",
			mutate:  func(d *ScheduleData) { s := "completed"; d.Status = &s },
			wantErr: "Invalid status. Must be draft or scheduled.",
		},
		{
			name:    "no recipients",
			mutate:  func(d *ScheduleData) { d.Recipients = nil },
			wantErr: "Recipients must be a non-empty array.",
		},
		{
			name:    "bad phone",
			mutate:  func(d *ScheduleData) { d.Recipients[0].PhoneNumber = "0801234" },
			wantErr: "Invalid phone number format: 0801234",
		},
		{
			name:    "bad scheduled time",
			mutate:  func(d *ScheduleData) { d.ScheduledTime = "tomorrow" },
			wantErr: "Invalid scheduled time.",
		},
		{
			name:    "missing scheduled time",
			mutate:  func(d *ScheduleData) { d.ScheduledTime = "" },
			wantErr: "Invalid scheduled time.",
		},
		{
			name:    "past scheduled time",
			mutate:  func(d *ScheduleData) { d.ScheduledTime = "2024-05-10T11:59" },
			wantErr: "Scheduled time must be in the future.",
		},
		{
			name: "incomplete time window",
			mutate: func(d *ScheduleData) {
				d.TimeWindow = &TimeWindow{Enabled: true, StartTime: "09:00", Timezone: "Africa/Lagos"}
			},
			wantErr: "Time window must include start, end, and timezone.",
		},
		{
			name:   "disabled time window is not checked",
			mutate: func(d *ScheduleData) { d.TimeWindow = &TimeWindow{StartTime: "9"} },
		},
		{
			name: "bad time window format",
			mutate: func(d *ScheduleData) {
				d.TimeWindow = &TimeWindow{Enabled: true, StartTime: "09:00", EndTime: "24:00", Timezone: "Africa/Lagos"}
			},
			wantErr: "Invalid time window format. Use HH:mm format.",
		},
		{
			name: "bad timezone",
			mutate: func(d *ScheduleData) {
				d.TimeWindow = &TimeWindow{Enabled: true, StartTime: "09:00", EndTime: "17:00", Timezone: "Mars/Olympus"}
			},
			wantErr: "Invalid timezone.",
		},
		{
			name: "max attempts",
			mutate: func(d *ScheduleData) {
				d.RetryConfig = &RetryConfig{Enabled: true, MaxAttempts: 6, BackoffDelay: 300}
			},
			wantErr: "Max attempts must be between 1 and 5.",
		},
		{
			name: "backoff delay",
			mutate: func(d *ScheduleData) {
				d.RetryConfig = &RetryConfig{Enabled: true, MaxAttempts: 3, BackoffDelay: 59}
			},
			wantErr: "Backoff delay must be between 60 and 3600 seconds.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validScheduleData()
			tt.mutate(&d)
			d.Clean()
			err := d.Validate(testNow)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestScheduleData_Clean(t *testing.T) {
	d := validScheduleData()
	d.Recipients = append(d.Recipients, Recipient{PhoneNumber: " +15551234567 "})
	d.RetryConfig = &RetryConfig{}
	d.Clean()

	assert.Equal(t, RecipientPending, d.Recipients[1].Status)
	assert.Equal(t, "+15551234567", d.Recipients[1].PhoneNumber)
	assert.NotNil(t, d.Recipients[1].Variables)
	assert.Equal(t, DefaultRetryConfig(), *d.RetryConfig)
}

func TestScheduleData_apply(t *testing.T) {
	d := validScheduleData()
	d.Clean()
	require.NoError(t, d.Validate(testNow))

	sch := Schedule{Status: StatusDraft, Template: TemplateRef{ID: "tpl-1", Name: "Welcome"}}
	d.apply(&sch)
	assert.Equal(t, "Welcome", sch.Template.Name, "unchanged template keeps its populated fields")
	assert.Equal(t, time.Date(2024, 5, 11, 9, 0, 0, 0, time.UTC), sch.ScheduledTime)
	assert.Equal(t, StatusDraft, sch.Status)

	d.Template = "tpl-2"
	status := StatusScheduled
	d.Status = &status
	d.apply(&sch)
	assert.Equal(t, TemplateRef{ID: "tpl-2"}, sch.Template)
	assert.Equal(t, StatusScheduled, sch.Status)
}

func TestTimeWindow_UnmarshalJSON(t *testing.T) {
	var d ScheduleData
	body := `{"templateId": "tpl-1", "timeWindow": {"enabled": true, "start": "08:00", "end": "18:30", "timezone": "UTC"}}`
	require.NoError(t, json.Unmarshal([]byte(body), &d))
	assert.Equal(t, &TimeWindow{Enabled: true, StartTime: "08:00", EndTime: "18:30", Timezone: "UTC"}, d.TimeWindow)
	d.Clean()
	assert.Equal(t, "tpl-1", d.Template)

	var tw TimeWindow
	require.NoError(t, json.Unmarshal([]byte(`{"startTime": "09:00", "start": "08:00", "endTime": "17:00"}`), &tw))
	assert.Equal(t, "09:00", tw.StartTime, "current name wins")
	assert.Equal(t, "17:00", tw.EndTime)
}

func recipients(statuses ...string) []Recipient {
	rs := make([]Recipient, len(statuses))
	for i, s := range statuses {
		rs[i] = Recipient{PhoneNumber: "+15551234567", Status: s}
	}
	return rs
}

func TestSchedule_Refresh(t *testing.T) {
	tests := []struct {
		name       string
		status     string
		recipients []Recipient
		wantStatus string
		wantStats  Stats
	}{
		{
			name:       "all pending",
			status:     StatusScheduled,
			recipients: recipients(RecipientPending, RecipientPending),
			wantStatus: StatusScheduled,
			wantStats:  Stats{Total: 2, Pending: 2},
		},
		{
			name:       "all sent",
			status:     StatusInProgress,
			recipients: recipients(RecipientSent, RecipientSent),
			wantStatus: StatusCompleted,
			wantStats:  Stats{Total: 2, Sent: 2},
		},
		{
			name:       "all cancelled",
			status:     StatusScheduled,
			recipients: recipients(RecipientCancelled),
			wantStatus: StatusCancelled,
			wantStats:  Stats{Total: 1, Cancelled: 1},
		},
		{
			name:       "all failed",
			status:     StatusInProgress,
			recipients: recipients(RecipientFailed, RecipientFailed),
			wantStatus: StatusFailed,
			wantStats:  Stats{Total: 2, Failed: 2},
		},
		{
			name:       "failed and cancelled",
			status:     StatusInProgress,
			recipients: recipients(RecipientFailed, RecipientCancelled),
			wantStatus: StatusFailed,
			wantStats:  Stats{Total: 2, Failed: 1, Cancelled: 1},
		},
		{
			name:       "partly sent",
			status:     StatusScheduled,
			recipients: recipients(RecipientSent, RecipientPending, RecipientFailed),
			wantStatus: StatusInProgress,
			wantStats:  Stats{Total: 3, Pending: 1, Sent: 1, Failed: 1},
		},
		{
			name:       "sent and cancelled",
			status:     StatusInProgress,
			recipients: recipients(RecipientSent, RecipientCancelled),
			wantStatus: StatusInProgress,
			wantStats:  Stats{Total: 2, Sent: 1, Cancelled: 1},
		},
		{
			name:       "cancelled stays cancelled",
			status:     StatusCancelled,
			recipients: recipients(RecipientSent, RecipientCancelled),
			wantStatus: StatusCancelled,
			wantStats:  Stats{Total: 2, Sent: 1, Cancelled: 1},
		},
		{
			name:       "draft",
			status:     StatusDraft,
			recipients: recipients(RecipientPending),
			wantStatus: StatusDraft,
			wantStats:  Stats{Total: 1, Pending: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sch := Schedule{Status: tt.status, Recipients: tt.recipients}
			sch.Refresh()
			assert.Equal(t, tt.wantStatus, sch.Status)
			assert.Equal(t, tt.wantStats, sch.Stats)
		})
	}
}

func TestSchedule_Cancel(t *testing.T) {
	sch := Schedule{Status: StatusInProgress, Recipients: recipients(RecipientSent, RecipientPending, RecipientFailed)}
	assert.True(t, sch.IsCancellable())
	assert.False(t, sch.IsDeletable())

	sch.Cancel()
	sch.Refresh()
	assert.Equal(t, StatusCancelled, sch.Status)
	assert.Equal(t, Stats{Total: 3, Sent: 1, Failed: 1, Cancelled: 1}, sch.Stats)
	assert.False(t, sch.IsCancellable())
	assert.True(t, sch.IsDeletable())
}

func TestSchedule_IsWithinTimeWindow(t *testing.T) {
	// 12:00 UTC is 13:00 in Lagos
	tests := []struct {
		name   string
		window TimeWindow
		want   bool
	}{
		{name: "disabled", window: TimeWindow{}, want: true},
		{name: "inside", window: TimeWindow{Enabled: true, Timezone: "Africa/Lagos", StartTime: "09:00", EndTime: "17:00"}, want: true},
		{name: "inclusive start", window: TimeWindow{Enabled: true, Timezone: "Africa/Lagos", StartTime: "13:00", EndTime: "17:00"}, want: true},
		{name: "inclusive end", window: TimeWindow{Enabled: true, Timezone: "Africa/Lagos", StartTime: "9:00", EndTime: "13:00"}, want: true},
		{name: "outside", window: TimeWindow{Enabled: true, Timezone: "UTC", StartTime: "13:00", EndTime: "17:00"}, want: false},
		{name: "overnight inside", window: TimeWindow{Enabled: true, Timezone: "Asia/Tokyo", StartTime: "20:00", EndTime: "06:00"}, want: true},
		{name: "overnight outside", window: TimeWindow{Enabled: true, Timezone: "UTC", StartTime: "20:00", EndTime: "06:00"}, want: false},
		{name: "bad timezone", window: TimeWindow{Enabled: true, Timezone: "Nowhere", StartTime: "00:00", EndTime: "23:59"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sch := Schedule{TimeWindow: tt.window}
			assert.Equal(t, tt.want, sch.IsWithinTimeWindow(testNow))
		})
	}
}

func TestSchedule_ValidateRecipientVariables(t *testing.T) {
	tpl := Template{Variables: []Variable{
		{Name: "First name", Key: "first_name", Required: true},
		{Name: "Code", Key: "code", Required: true},
		{Name: "Note", Key: "note"},
	}}
	sch := Schedule{Recipients: []Recipient{
		{PhoneNumber: "+15551234567", Variables: map[string]string{"first_name": "Ada", "code": "1"}},
		{PhoneNumber: "+15557654321", Variables: map[string]string{"first_name": ""}},
	}}
	assert.Equal(t, []string{
		"Recipient 2 (+15557654321) is missing required variable: code",
	}, sch.ValidateRecipientVariables(tpl), "an empty value is a given value")

	sch.Recipients[1].Variables = nil
	assert.Equal(t, []string{
		"Recipient 2 (+15557654321) is missing required variable: first_name",
		"Recipient 2 (+15557654321) is missing required variable: code",
	}, sch.ValidateRecipientVariables(tpl))

	assert.Empty(t, sch.ValidateRecipientVariables(Template{}))
}

func TestSchedule_PhoneSearchValue(t *testing.T) {
	tests := []struct {
		name       string
		recipients []Recipient
		want       string
	}{
		{"none", nil, ""},
		{"one", []Recipient{{PhoneNumber: "+2348012345678"}}, "+2348012345678"},
		{
			"variables and statuses are left out",
			[]Recipient{
				{PhoneNumber: "+2348012345678", Variables: map[string]string{"first_name": "Ada"}, Status: RecipientPending},
				{PhoneNumber: "+15557654321", Status: RecipientSent},
			},
			"+2348012345678\n+15557654321",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Schedule{Recipients: tt.recipients}.PhoneSearchValue())
		})
	}
}

func TestScheduleFilter(t *testing.T) {
	var f ScheduleFilter
	f.Clean()
	assert.Equal(t, "scheduledTime", f.SortBy)
	assert.Equal(t, "asc", f.SortOrder)
	assert.Equal(t, "scheduled_time ASC", f.Ordering()[0].String())

	require.NoError(t, f.ParseDateBounds("2024-05-01", "2024-05-31T23:59:59Z"))
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), *f.StartDate)
	assert.Equal(t, time.Date(2024, 5, 31, 23, 59, 59, 0, time.UTC), *f.EndDate)

	assert.EqualError(t, f.ParseDateBounds("May 1st", ""), "Invalid startDate.")
}

func TestComputeScheduleStats(t *testing.T) {
	assert.Equal(t, ScheduleStats{}, ComputeScheduleStats(nil))

	stats := ComputeScheduleStats([]Schedule{
		{Status: StatusCompleted, Stats: Stats{Total: 2, Sent: 2}},
		{Status: StatusInProgress, Stats: Stats{Total: 3, Sent: 1, Failed: 1, Pending: 1}},
		{Status: StatusFailed, Stats: Stats{Total: 1, Failed: 1}},
	})
	assert.Equal(t, ScheduleStats{
		TotalSchedules:      3,
		CompletedSchedules:  1,
		InProgressSchedules: 1,
		FailedSchedules:     1,
		TotalMessages:       6,
		SentMessages:        3,
		FailedMessages:      2,
		AverageRecipients:   2,
		SuccessRate:         50,
	}, stats)
}
