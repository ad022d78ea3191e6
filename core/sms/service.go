package sms

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/pixelforegllc/quantummftools-dash/core"
)

var (
	// errors
	ErrTemplateNotFound = errors.New("Template not found")
	ErrScheduleNotFound = errors.New("Schedule not found")

	// user-facing refusals
	ErrTemplateInUse          = errors.New("Template is used by existing schedules")
	ErrScheduleNotUpdatable   = errors.New("Only draft schedules can be updated")
	ErrScheduleNotDeletable   = errors.New("Only draft or cancelled schedules can be deleted")
	ErrScheduleNotCancellable = errors.New("Only scheduled or in-progress schedules can be cancelled")
)

type (
	TemplateRepository interface {
		QueryTemplates(ctx context.Context, filter TemplateFilter) ([]Template, error)
		CountTemplates(ctx context.Context, filter TemplateFilter) (int, error)
		AllTemplates(ctx context.Context) ([]Template, error)
		GetTemplate(ctx context.Context, id string) (Template, error)
		CreateTemplate(ctx context.Context, tpl Template) (Template, error)
		UpdateTemplate(ctx context.Context, tpl Template) (Template, error)
		DeleteTemplate(ctx context.Context, id string) error
	}

	ScheduleRepository interface {
		QuerySchedules(ctx context.Context, filter ScheduleFilter) ([]Schedule, error)
		CountSchedules(ctx context.Context, filter ScheduleFilter) (int, error)
		AllSchedules(ctx context.Context) ([]Schedule, error)
		GetSchedule(ctx context.Context, id string) (Schedule, error)
		// CreateSchedule stores sch and records the usage of its template at sch.CreatedAt,
		// in one transaction.
		CreateSchedule(ctx context.Context, sch Schedule) (Schedule, error)
		UpdateSchedule(ctx context.Context, sch Schedule) (Schedule, error)
		DeleteSchedule(ctx context.Context, id string) error
	}

	TemplateService interface {
		Query(ctx context.Context, filter TemplateFilter) ([]Template, core.Pagination, error)
		Stats(ctx context.Context) (TemplateStats, error)
		GetByID(ctx context.Context, id string) (Template, error)
		Create(ctx context.Context, data TemplateData, by UserRef) (Template, error)
		Update(ctx context.Context, tpl Template, data TemplateData, by UserRef) (Template, error)
		Delete(ctx context.Context, tpl Template) error
		Clone(ctx context.Context, tpl Template, by UserRef) (Template, error)
		Preview(data PreviewData) (string, error)
	}

	ScheduleService interface {
		Query(ctx context.Context, filter ScheduleFilter) ([]Schedule, core.Pagination, error)
		Stats(ctx context.Context) (ScheduleStats, error)
		GetByID(ctx context.Context, id string) (Schedule, error)
		Create(ctx context.Context, data ScheduleData, by UserRef) (Schedule, error)
		Update(ctx context.Context, sch Schedule, data ScheduleData, by UserRef) (Schedule, error)
		Delete(ctx context.Context, sch Schedule) error
		Cancel(ctx context.Context, sch Schedule, by UserRef) (Schedule, error)
	}

	templateService struct {
		repo      TemplateRepository
		schedules ScheduleRepository
		nowFunc   func() time.Time
	}

	scheduleService struct {
		repo      ScheduleRepository
		templates TemplateRepository
		nowFunc   func() time.Time
	}
)

var (
	_ TemplateService = (*templateService)(nil)
	_ ScheduleService = (*scheduleService)(nil)
)

func NewTemplateService(repo TemplateRepository, schedules ScheduleRepository) TemplateService {
	return &templateService{repo: repo, schedules: schedules, nowFunc: time.Now}
}

func NewScheduleService(repo ScheduleRepository, templates TemplateRepository) ScheduleService {
	return &scheduleService{repo: repo, templates: templates, nowFunc: time.Now}
}

func (svc *templateService) Query(ctx context.Context, filter TemplateFilter) ([]Template, core.Pagination, error) {
	filter.Clean()

	var (
		tpls  []Template
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		tpls, err = svc.repo.QueryTemplates(gctx, filter)
		return errors.Wrap(err, "querying templates")
	})
	g.Go(func() (err error) {
		total, err = svc.repo.CountTemplates(gctx, filter)
		return errors.Wrap(err, "counting templates")
	})
	if err := g.Wait(); err != nil {
		return nil, core.Pagination{}, err
	}
	if tpls == nil {
		tpls = []Template{}
	}
	return tpls, core.NewPagination(filter.GetPage(), total), nil
}

func (svc *templateService) Stats(ctx context.Context) (TemplateStats, error) {
	tpls, err := svc.repo.AllTemplates(ctx)
	if err != nil {
		return TemplateStats{}, errors.Wrap(err, "querying templates")
	}
	return ComputeTemplateStats(tpls), nil
}

func (svc *templateService) GetByID(ctx context.Context, id string) (Template, error) {
	return svc.repo.GetTemplate(ctx, id)
}

func (svc *templateService) Create(ctx context.Context, data TemplateData, by UserRef) (Template, error) {
	data.Clean()
	if err := data.Validate(); err != nil {
		return Template{}, err
	}

	now := svc.nowFunc().UTC()
	tpl := Template{
		ID:        uuid.NewString(),
		IsActive:  true,
		Language:  LanguageEN,
		CreatedBy: &by,
		UpdatedBy: &by,
		CreatedAt: now,
	}
	data.apply(&tpl)
	tpl.UpdatedAt = now
	return svc.repo.CreateTemplate(ctx, tpl)
}

func (svc *templateService) Update(ctx context.Context, tpl Template, data TemplateData, by UserRef) (Template, error) {
	data.Clean()
	if err := data.Validate(); err != nil {
		return Template{}, err
	}

	data.apply(&tpl)
	tpl.UpdatedBy = &by
	tpl.UpdatedAt = svc.nowFunc().UTC()
	return svc.repo.UpdateTemplate(ctx, tpl)
}

func (svc *templateService) Delete(ctx context.Context, tpl Template) error {
	n, err := svc.schedules.CountSchedules(ctx, ScheduleFilter{Template: tpl.ID})
	if err != nil {
		return errors.Wrap(err, "counting schedules")
	}
	if n > 0 {
		return core.NewValidationError(ErrTemplateInUse)
	}
	return svc.repo.DeleteTemplate(ctx, tpl.ID)
}

func (svc *templateService) Clone(ctx context.Context, tpl Template, by UserRef) (Template, error) {
	now := svc.nowFunc().UTC()
	clone := tpl
	clone.ID = uuid.NewString()
	clone.Name = tpl.Name + " (Clone)"
	clone.Tags = append([]string(nil), tpl.Tags...)
	clone.Variables = append([]Variable(nil), tpl.Variables...)
	clone.Metadata = make(map[string]string, len(tpl.Metadata))
	for k, v := range tpl.Metadata {
		clone.Metadata[k] = v
	}
	clone.UsageCount = 0
	clone.LastUsed = nil
	clone.CreatedBy = &by
	clone.UpdatedBy = &by
	clone.CreatedAt = now
	clone.UpdatedAt = now
	return svc.repo.CreateTemplate(ctx, clone)
}

func (svc *templateService) Preview(data PreviewData) (string, error) {
	tpl := Template{Content: data.Content, Variables: data.Variables}
	return tpl.Compile(data.Data)
}

// apply copies d onto t. d must have been validated.
func (d TemplateData) apply(t *Template) {
	t.Name = d.Name
	t.Content = d.Content
	t.Category = d.Category
	t.Tags = d.Tags
	if t.Tags == nil {
		t.Tags = []string{}
	}
	t.Variables = d.Variables
	if t.Variables == nil {
		t.Variables = []Variable{}
	}
	if d.IsActive != nil {
		t.IsActive = *d.IsActive
	}
	if d.Language != "" {
		t.Language = d.Language
	}
	t.SenderID = d.SenderID
	t.Metadata = d.Metadata
	if t.Metadata == nil {
		t.Metadata = map[string]string{}
	}
}

func (svc *scheduleService) Query(ctx context.Context, filter ScheduleFilter) ([]Schedule, core.Pagination, error) {
	filter.Clean()

	var (
		schedules []Schedule
		total     int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		schedules, err = svc.repo.QuerySchedules(gctx, filter)
		return errors.Wrap(err, "querying schedules")
	})
	g.Go(func() (err error) {
		total, err = svc.repo.CountSchedules(gctx, filter)
		return errors.Wrap(err, "counting schedules")
	})
	if err := g.Wait(); err != nil {
		return nil, core.Pagination{}, err
	}
	if schedules == nil {
		schedules = []Schedule{}
	}
	return schedules, core.NewPagination(filter.GetPage(), total), nil
}

func (svc *scheduleService) Stats(ctx context.Context) (ScheduleStats, error) {
	schedules, err := svc.repo.AllSchedules(ctx)
	if err != nil {
		return ScheduleStats{}, errors.Wrap(err, "querying schedules")
	}
	return ComputeScheduleStats(schedules), nil
}

func (svc *scheduleService) GetByID(ctx context.Context, id string) (Schedule, error) {
	return svc.repo.GetSchedule(ctx, id)
}

func (svc *scheduleService) Create(ctx context.Context, data ScheduleData, by UserRef) (Schedule, error) {
	now := svc.nowFunc().UTC()
	data.Clean()
	if err := data.Validate(now); err != nil {
		return Schedule{}, err
	}

	sch := Schedule{
		ID:          uuid.NewString(),
		Status:      StatusDraft,
		RetryConfig: DefaultRetryConfig(),
		Metadata:    map[string]string{},
		CreatedBy:   &by,
		UpdatedBy:   &by,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	data.apply(&sch)

	if _, err := svc.checkTemplate(ctx, sch); err != nil {
		return Schedule{}, err
	}

	sch.Refresh()
	return svc.repo.CreateSchedule(ctx, sch)
}

func (svc *scheduleService) Update(ctx context.Context, sch Schedule, data ScheduleData, by UserRef) (Schedule, error) {
	if sch.Status != StatusDraft && data.Status == nil {
		return Schedule{}, core.NewValidationError(ErrScheduleNotUpdatable)
	}

	now := svc.nowFunc().UTC()
	data.Clean()
	if err := data.Validate(now); err != nil {
		return Schedule{}, err
	}

	data.apply(&sch)
	if _, err := svc.checkTemplate(ctx, sch); err != nil {
		return Schedule{}, err
	}

	sch.UpdatedBy = &by
	sch.UpdatedAt = now
	sch.Refresh()
	return svc.repo.UpdateSchedule(ctx, sch)
}

// checkTemplate loads the template of sch and checks the recipients provide its required variables.
func (svc *scheduleService) checkTemplate(ctx context.Context, sch Schedule) (Template, error) {
	tpl, err := svc.templates.GetTemplate(ctx, sch.Template.ID)
	if err != nil {
		if errors.Cause(err) == ErrTemplateNotFound {
			return Template{}, core.NewValidationError(ErrTemplateNotFound)
		}
		return Template{}, errors.Wrap(err, "getting template")
	}
	if errs := sch.ValidateRecipientVariables(tpl); len(errs) > 0 {
		return Template{}, core.NewValidationError(errors.New(strings.Join(errs, ", ")))
	}
	return tpl, nil
}

func (svc *scheduleService) Delete(ctx context.Context, sch Schedule) error {
	if !sch.IsDeletable() {
		return core.NewValidationError(ErrScheduleNotDeletable)
	}
	return svc.repo.DeleteSchedule(ctx, sch.ID)
}

func (svc *scheduleService) Cancel(ctx context.Context, sch Schedule, by UserRef) (Schedule, error) {
	if !sch.IsCancellable() {
		return Schedule{}, core.NewValidationError(ErrScheduleNotCancellable)
	}

	sch.Cancel()
	sch.UpdatedBy = &by
	sch.UpdatedAt = svc.nowFunc().UTC()
	sch.Refresh()
	return svc.repo.UpdateSchedule(ctx, sch)
}
