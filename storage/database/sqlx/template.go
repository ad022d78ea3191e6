package sqlxrepos

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pixelforegllc/quantummftools-dash/core"
	"github.com/pixelforegllc/quantummftools-dash/core/sms"
)

const (
	templateColumns = "id, name, content, category, tags, tag_list, variables, is_active, language, sender_id, " +
		"metadata, usage_count, last_used, created_by, updated_by, created_at, updated_at"

	// templates with populated creator and last editor
	templateSelect = `SELECT t.id, t.name, t.content, t.category, t.tags, t.variables, t.is_active, t.language,
		t.sender_id, t.metadata, t.usage_count, t.last_used, t.created_by, cu.username AS created_by_username,
		t.updated_by, uu.username AS updated_by_username, t.created_at, t.updated_at
		FROM sms_templates t
		LEFT JOIN users cu ON cu.id = t.created_by
		LEFT JOIN users uu ON uu.id = t.updated_by`
)

type templateRow struct {
	ID                string                       `db:"id"`
	Name              string                       `db:"name"`
	Content           string                       `db:"content"`
	Category          string                       `db:"category"`
	Tags              jsonValue[[]string]          `db:"tags"`
	TagList           string                       `db:"tag_list"`
	Variables         jsonValue[[]sms.Variable]    `db:"variables"`
	IsActive          bool                         `db:"is_active"`
	Language          string                       `db:"language"`
	SenderID          null.String                  `db:"sender_id"`
	Metadata          jsonValue[map[string]string] `db:"metadata"`
	UsageCount        int                          `db:"usage_count"`
	LastUsed          null.Time                    `db:"last_used"`
	CreatedBy         null.String                  `db:"created_by"`
	CreatedByUsername null.String                  `db:"created_by_username"`
	UpdatedBy         null.String                  `db:"updated_by"`
	UpdatedByUsername null.String                  `db:"updated_by_username"`
	CreatedAt         time.Time                    `db:"created_at"`
	UpdatedAt         time.Time                    `db:"updated_at"`
}

type templateRepository struct {
	db *sqlx.DB
}

var _ sms.TemplateRepository = (*templateRepository)(nil) // interface compliance check

func NewTemplateRepository(db *sqlx.DB) *templateRepository {
	return &templateRepository{db: db}
}

func userRefID(ref *sms.UserRef) null.String {
	if ref == nil || ref.ID == "" {
		return null.String{}
	}
	return null.StringFrom(ref.ID)
}

func userRef(id, username null.String) *sms.UserRef {
	if !id.Valid {
		return nil
	}
	return &sms.UserRef{ID: id.String, Username: username.String}
}

func (repo templateRepository) toRow(tpl sms.Template) templateRow {
	return templateRow{
		ID:         tpl.ID,
		Name:       tpl.Name,
		Content:    tpl.Content,
		Category:   tpl.Category,
		Tags:       jsonValue[[]string]{tpl.Tags},
		TagList:    sms.JoinSearchValues(tpl.Tags),
		Variables:  jsonValue[[]sms.Variable]{tpl.Variables},
		IsActive:   tpl.IsActive,
		Language:   tpl.Language,
		SenderID:   null.NewString(tpl.SenderID, tpl.SenderID != ""),
		Metadata:   jsonValue[map[string]string]{tpl.Metadata},
		UsageCount: tpl.UsageCount,
		LastUsed:   nullTime(tpl.LastUsed),
		CreatedBy:  userRefID(tpl.CreatedBy),
		UpdatedBy:  userRefID(tpl.UpdatedBy),
		CreatedAt:  tpl.CreatedAt.UTC(),
		UpdatedAt:  tpl.UpdatedAt.UTC(),
	}
}

func (repo templateRepository) fromRow(row templateRow) sms.Template {
	tpl := sms.Template{
		ID:         row.ID,
		Name:       row.Name,
		Content:    row.Content,
		Category:   row.Category,
		Tags:       row.Tags.V,
		Variables:  row.Variables.V,
		IsActive:   row.IsActive,
		Language:   row.Language,
		SenderID:   row.SenderID.String,
		Metadata:   row.Metadata.V,
		UsageCount: row.UsageCount,
		CreatedBy:  userRef(row.CreatedBy, row.CreatedByUsername),
		UpdatedBy:  userRef(row.UpdatedBy, row.UpdatedByUsername),
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}
	if tpl.Tags == nil {
		tpl.Tags = []string{}
	}
	if tpl.Variables == nil {
		tpl.Variables = []sms.Variable{}
	}
	if tpl.Metadata == nil {
		tpl.Metadata = map[string]string{}
	}
	if row.LastUsed.Valid {
		t := row.LastUsed.Time.UTC()
		tpl.LastUsed = &t
	}
	return tpl
}

func (repo templateRepository) selectTemplates(ctx context.Context, q string, args ...interface{}) ([]sms.Template, error) {
	var rows []templateRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	tpls := make([]sms.Template, 0, len(rows))
	for _, row := range rows {
		tpls = append(tpls, repo.fromRow(row))
	}
	return tpls, nil
}

func (repo templateRepository) filter(filter sms.TemplateFilter) where {
	var w where
	if filter.Category != "" {
		w.add("t.category = ?", filter.Category)
	}
	if filter.Language != "" {
		w.add("t.language = ?", filter.Language)
	}
	switch filter.Status {
	case "active":
		w.add("t.is_active = ?", true)
	case "inactive":
		w.add("t.is_active = ?", false)
	}
	// templates with name, content or a tag matching the search keyword
	if filter.Search != "" {
		val := likePattern(filter.Search)
		w.add(fmt.Sprintf("("+likeExpr+" OR "+likeExpr+" OR "+likeExpr+")", "t.name", "t.content", "t.tag_list"), val, val, val)
	}
	return w
}

// prefixed qualifies ordering columns with a table alias.
func prefixed(alias string, ordering []core.DBOrdering) []core.DBOrdering {
	ords := make([]core.DBOrdering, 0, len(ordering))
	for _, ord := range ordering {
		ords = append(ords, core.DBOrdering{Field: alias + "." + ord.Field, Ascending: ord.Ascending})
	}
	return ords
}

func (repo templateRepository) QueryTemplates(ctx context.Context, filter sms.TemplateFilter) ([]sms.Template, error) {
	w := repo.filter(filter)
	page := filter.GetPage()
	q := templateSelect + w.String() + orderBy(prefixed("t", filter.Ordering())) + " LIMIT ? OFFSET ?"
	tpls, err := repo.selectTemplates(ctx, q, append(w.args, page.Size, page.Offset())...)
	return tpls, errors.Wrap(err, "querying templates")
}

func (repo templateRepository) CountTemplates(ctx context.Context, filter sms.TemplateFilter) (int, error) {
	w := repo.filter(filter)
	var n int
	q := repo.db.Rebind("SELECT COUNT(*) FROM sms_templates t" + w.String())
	if err := repo.db.GetContext(ctx, &n, q, w.args...); err != nil {
		return 0, errors.Wrap(err, "counting templates")
	}
	return n, nil
}

func (repo templateRepository) AllTemplates(ctx context.Context) ([]sms.Template, error) {
	tpls, err := repo.selectTemplates(ctx, templateSelect+" ORDER BY t.created_at DESC, t.id")
	return tpls, errors.Wrap(err, "querying templates")
}

func (repo templateRepository) GetTemplate(ctx context.Context, id string) (sms.Template, error) {
	if _, err := uuid.Parse(id); err != nil {
		return sms.Template{}, sms.ErrTemplateNotFound
	}
	var row templateRow
	if err := repo.db.GetContext(ctx, &row, repo.db.Rebind(templateSelect+" WHERE t.id = ?"), id); err != nil {
		return sms.Template{}, trapNoRowsErr(err, sms.ErrTemplateNotFound, "finding template")
	}
	return repo.fromRow(row), nil
}

func (repo templateRepository) CreateTemplate(ctx context.Context, tpl sms.Template) (sms.Template, error) {
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}
	q := `INSERT INTO sms_templates (` + templateColumns + `) VALUES
		(:id, :name, :content, :category, :tags, :tag_list, :variables, :is_active, :language, :sender_id,
		:metadata, :usage_count, :last_used, :created_by, :updated_by, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, repo.toRow(tpl)); err != nil {
		return sms.Template{}, errors.Wrap(err, "inserting template")
	}
	return repo.GetTemplate(ctx, tpl.ID)
}

func (repo templateRepository) UpdateTemplate(ctx context.Context, tpl sms.Template) (sms.Template, error) {
	// usage_count and last_used only move through recordTemplateUsage
	q := `UPDATE sms_templates SET name = :name, content = :content, category = :category, tags = :tags,
		tag_list = :tag_list, variables = :variables, is_active = :is_active, language = :language,
		sender_id = :sender_id, metadata = :metadata, updated_by = :updated_by, updated_at = :updated_at
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, repo.toRow(tpl))
	if err != nil {
		return sms.Template{}, errors.Wrap(err, "updating template")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sms.Template{}, sms.ErrTemplateNotFound
	}
	return repo.GetTemplate(ctx, tpl.ID)
}

func (repo templateRepository) DeleteTemplate(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind("DELETE FROM sms_templates WHERE id = ?"), id)
	if err != nil {
		return errors.Wrap(err, "deleting template")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sms.ErrTemplateNotFound
	}
	return nil
}

// recordTemplateUsage increments the usage count of a template in place.
func recordTemplateUsage(ctx context.Context, tx *sqlx.Tx, id string, at time.Time) error {
	q := tx.Rebind("UPDATE sms_templates SET usage_count = usage_count + 1, last_used = ? WHERE id = ?")
	res, err := tx.ExecContext(ctx, q, at.UTC(), id)
	if err != nil {
		return errors.Wrap(err, "recording template usage")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sms.ErrTemplateNotFound
	}
	return nil
}
