package sqlxrepos

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pixelforegllc/quantummftools-dash/core/sms"
)

const (
	scheduleColumns = "id, name, template_id, status, scheduled_time, time_window, retry_config, recipients, " +
		"recipient_phones, metadata, stats, created_by, updated_by, created_at, updated_at"

	// schedules with populated template, creator and last editor
	scheduleSelect = `SELECT s.id, s.name, s.template_id, t.name AS template_name, t.content AS template_content,
		t.variables AS template_variables, s.status, s.scheduled_time, s.time_window, s.retry_config, s.recipients,
		s.metadata, s.stats, s.created_by, cu.username AS created_by_username, s.updated_by,
		uu.username AS updated_by_username, s.created_at, s.updated_at
		FROM sms_schedules s
		LEFT JOIN sms_templates t ON t.id = s.template_id
		LEFT JOIN users cu ON cu.id = s.created_by
		LEFT JOIN users uu ON uu.id = s.updated_by`
)

type scheduleRow struct {
	ID                string                       `db:"id"`
	Name              string                       `db:"name"`
	TemplateID        string                       `db:"template_id"`
	TemplateName      null.String                  `db:"template_name"`
	TemplateContent   null.String                  `db:"template_content"`
	TemplateVariables jsonValue[[]sms.Variable]    `db:"template_variables"`
	Status            string                       `db:"status"`
	ScheduledTime     time.Time                    `db:"scheduled_time"`
	TimeWindow        jsonValue[sms.TimeWindow]    `db:"time_window"`
	RetryConfig       jsonValue[sms.RetryConfig]   `db:"retry_config"`
	Recipients        jsonValue[[]sms.Recipient]   `db:"recipients"`
	RecipientPhones   string                       `db:"recipient_phones"`
	Metadata          jsonValue[map[string]string] `db:"metadata"`
	Stats             jsonValue[sms.Stats]         `db:"stats"`
	CreatedBy         null.String                  `db:"created_by"`
	CreatedByUsername null.String                  `db:"created_by_username"`
	UpdatedBy         null.String                  `db:"updated_by"`
	UpdatedByUsername null.String                  `db:"updated_by_username"`
	CreatedAt         time.Time                    `db:"created_at"`
	UpdatedAt         time.Time                    `db:"updated_at"`
}

type scheduleRepository struct {
	db *sqlx.DB
}

var _ sms.ScheduleRepository = (*scheduleRepository)(nil) // interface compliance check

func NewScheduleRepository(db *sqlx.DB) *scheduleRepository {
	return &scheduleRepository{db: db}
}

func (repo scheduleRepository) toRow(sch sms.Schedule) scheduleRow {
	return scheduleRow{
		ID:              sch.ID,
		Name:            sch.Name,
		TemplateID:      sch.Template.ID,
		Status:          sch.Status,
		ScheduledTime:   sch.ScheduledTime.UTC(),
		TimeWindow:      jsonValue[sms.TimeWindow]{sch.TimeWindow},
		RetryConfig:     jsonValue[sms.RetryConfig]{sch.RetryConfig},
		Recipients:      jsonValue[[]sms.Recipient]{sch.Recipients},
		RecipientPhones: sch.PhoneSearchValue(),
		Metadata:        jsonValue[map[string]string]{sch.Metadata},
		Stats:           jsonValue[sms.Stats]{sch.Stats},
		CreatedBy:       userRefID(sch.CreatedBy),
		UpdatedBy:       userRefID(sch.UpdatedBy),
		CreatedAt:       sch.CreatedAt.UTC(),
		UpdatedAt:       sch.UpdatedAt.UTC(),
	}
}

func (repo scheduleRepository) fromRow(row scheduleRow) sms.Schedule {
	sch := sms.Schedule{
		ID:   row.ID,
		Name: row.Name,
		Template: sms.TemplateRef{
			ID:        row.TemplateID,
			Name:      row.TemplateName.String,
			Content:   row.TemplateContent.String,
			Variables: row.TemplateVariables.V,
		},
		Status:        row.Status,
		ScheduledTime: row.ScheduledTime.UTC(),
		TimeWindow:    row.TimeWindow.V,
		RetryConfig:   row.RetryConfig.V,
		Recipients:    row.Recipients.V,
		Metadata:      row.Metadata.V,
		Stats:         row.Stats.V,
		CreatedBy:     userRef(row.CreatedBy, row.CreatedByUsername),
		UpdatedBy:     userRef(row.UpdatedBy, row.UpdatedByUsername),
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}
	if sch.Recipients == nil {
		sch.Recipients = []sms.Recipient{}
	}
	if sch.Metadata == nil {
		sch.Metadata = map[string]string{}
	}
	return sch
}

func (repo scheduleRepository) selectSchedules(ctx context.Context, q string, args ...interface{}) ([]sms.Schedule, error) {
	var rows []scheduleRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	schedules := make([]sms.Schedule, 0, len(rows))
	for _, row := range rows {
		schedules = append(schedules, repo.fromRow(row))
	}
	return schedules, nil
}

func (repo scheduleRepository) filter(filter sms.ScheduleFilter) where {
	var w where
	if filter.Status != "" {
		w.add("s.status = ?", filter.Status)
	}
	if filter.Template != "" {
		w.add("s.template_id = ?", filter.Template)
	}
	if filter.StartDate != nil {
		w.add("s.scheduled_time >= ?", filter.StartDate.UTC())
	}
	if filter.EndDate != nil {
		w.add("s.scheduled_time <= ?", filter.EndDate.UTC())
	}
	// schedules with name or a recipient phone number matching the search keyword
	if filter.Search != "" {
		val := likePattern(filter.Search)
		w.add(fmt.Sprintf("("+likeExpr+" OR "+likeExpr+")", "s.name", "s.recipient_phones"), val, val)
	}
	return w
}

func (repo scheduleRepository) QuerySchedules(ctx context.Context, filter sms.ScheduleFilter) ([]sms.Schedule, error) {
	w := repo.filter(filter)
	page := filter.GetPage()
	q := scheduleSelect + w.String() + orderBy(prefixed("s", filter.Ordering())) + " LIMIT ? OFFSET ?"
	schedules, err := repo.selectSchedules(ctx, q, append(w.args, page.Size, page.Offset())...)
	return schedules, errors.Wrap(err, "querying schedules")
}

func (repo scheduleRepository) CountSchedules(ctx context.Context, filter sms.ScheduleFilter) (int, error) {
	w := repo.filter(filter)
	var n int
	q := repo.db.Rebind("SELECT COUNT(*) FROM sms_schedules s" + w.String())
	if err := repo.db.GetContext(ctx, &n, q, w.args...); err != nil {
		return 0, errors.Wrap(err, "counting schedules")
	}
	return n, nil
}

func (repo scheduleRepository) AllSchedules(ctx context.Context) ([]sms.Schedule, error) {
	schedules, err := repo.selectSchedules(ctx, scheduleSelect+" ORDER BY s.scheduled_time, s.id")
	return schedules, errors.Wrap(err, "querying schedules")
}

func (repo scheduleRepository) GetSchedule(ctx context.Context, id string) (sms.Schedule, error) {
	if _, err := uuid.Parse(id); err != nil {
		return sms.Schedule{}, sms.ErrScheduleNotFound
	}
	var row scheduleRow
	if err := repo.db.GetContext(ctx, &row, repo.db.Rebind(scheduleSelect+" WHERE s.id = ?"), id); err != nil {
		return sms.Schedule{}, trapNoRowsErr(err, sms.ErrScheduleNotFound, "finding schedule")
	}
	return repo.fromRow(row), nil
}

func (repo scheduleRepository) CreateSchedule(ctx context.Context, sch sms.Schedule) (sms.Schedule, error) {
	if sch.ID == "" {
		sch.ID = uuid.NewString()
	}
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return sms.Schedule{}, errors.Wrap(err, "inserting schedule")
	}
	defer func() { _ = tx.Rollback() }()

	q := `INSERT INTO sms_schedules (` + scheduleColumns + `) VALUES
		(:id, :name, :template_id, :status, :scheduled_time, :time_window, :retry_config, :recipients,
		:recipient_phones, :metadata, :stats, :created_by, :updated_by, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, q, repo.toRow(sch)); err != nil {
		return sms.Schedule{}, errors.Wrap(err, "inserting schedule")
	}
	if err = recordTemplateUsage(ctx, tx, sch.Template.ID, sch.CreatedAt); err != nil {
		return sms.Schedule{}, err
	}
	if err = tx.Commit(); err != nil {
		return sms.Schedule{}, errors.Wrap(err, "inserting schedule")
	}
	return repo.GetSchedule(ctx, sch.ID)
}

func (repo scheduleRepository) UpdateSchedule(ctx context.Context, sch sms.Schedule) (sms.Schedule, error) {
	q := `UPDATE sms_schedules SET name = :name, template_id = :template_id, status = :status,
		scheduled_time = :scheduled_time, time_window = :time_window, retry_config = :retry_config,
		recipients = :recipients, recipient_phones = :recipient_phones, metadata = :metadata, stats = :stats,
		updated_by = :updated_by, updated_at = :updated_at WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, repo.toRow(sch))
	if err != nil {
		return sms.Schedule{}, errors.Wrap(err, "updating schedule")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sms.Schedule{}, sms.ErrScheduleNotFound
	}
	return repo.GetSchedule(ctx, sch.ID)
}

func (repo scheduleRepository) DeleteSchedule(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind("DELETE FROM sms_schedules WHERE id = ?"), id)
	if err != nil {
		return errors.Wrap(err, "deleting schedule")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sms.ErrScheduleNotFound
	}
	return nil
}
