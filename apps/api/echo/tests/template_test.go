package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/pixelforegllc/quantummftools-dash/apps/api/echo"
	"github.com/pixelforegllc/quantummftools-dash/core/sms"
	"github.com/pixelforegllc/quantummftools-dash/core/user"
)

var greetingVars = []sms.Variable{
	{Name: "First name", Key: "firstName", Required: true},
	{Name: "Fund", Key: "fund"},
}

func createTemplate(t *testing.T, name, category, language string, isActive bool) sms.Template {
	t.Helper()
	svc := sms.NewTemplateService(tplRepo, schRepo)
	tpl, err := svc.Create(context.Background(), sms.TemplateData{
		Name:      name,
		Content:   "Hi {{firstName}}, your {{fund}} statement is ready.",
		Category:  category,
		Tags:      []string{"statements"},
		Variables: greetingVars,
		IsActive:  &isActive,
		Language:  language,
	}, seedRef(t))
	require.NoError(t, err)
	return tpl
}

func templateNames(tpls []sms.Template) []string {
	names := make([]string, 0, len(tpls))
	for _, tpl := range tpls {
		names = append(names, tpl.Name)
	}
	return names
}

func Test_templateApi_create(t *testing.T) {
	app := setup(t)
	jane := createUser(t, "jane", user.RoleUser, true)
	token := getToken(t, jane)

	tplBody := func(data sms.TemplateData) []byte { return marchallObj(t, data) }
	valid := sms.TemplateData{Name: "Welcome", Content: "Hi {{firstName}}, your {{fund}} statement is ready.", Category: "onboarding", Variables: greetingVars}
	with := func(edit func(*sms.TemplateData)) []byte {
		data := valid
		data.Variables = append([]sms.Variable(nil), valid.Variables...)
		edit(&data)
		return tplBody(data)
	}

	tests := []struct {
		name string
		body []byte
		msg  string
	}{
		{"short name", with(func(d *sms.TemplateData) { d.Name = " ab " }), "Invalid template name. Must be between 3 and 100 characters."},
		{"no content", with(func(d *sms.TemplateData) { d.Content = "" }), "Invalid template content. Must not exceed 1600 characters."},
		{"no category", with(func(d *sms.TemplateData) { d.Category = "" }), "Invalid category."},
		{"bad language", with(func(d *sms.TemplateData) { d.Language = "de" }), "Invalid language code."},
		{"bad sender", with(func(d *sms.TemplateData) { d.SenderID = "QUANTUM-MF" }), "Invalid sender ID. Must be alphanumeric and not exceed 11 characters."},
		{"unnamed variable", with(func(d *sms.TemplateData) { d.Variables[0].Name = "" }), "Each variable must have a name and key."},
		{
			"duplicate key",
			with(func(d *sms.TemplateData) { d.Variables = append(d.Variables, sms.Variable{Name: "Again", Key: "fund"}) }),
			"Duplicate variable key: fund",
		},
		{
			"bad key",
			with(func(d *sms.TemplateData) {
				d.Variables = append(d.Variables, sms.Variable{Name: "Bad", Key: "1st"})
				d.Content += " {{1st}}"
			}),
			"Invalid variable key format: 1st. Must start with a letter and contain only letters, numbers, and underscores.",
		},
		{
			"undefined placeholders",
			with(func(d *sms.TemplateData) { d.Content += " {{amount}} {{amount}}" }),
			"Undefined variables in content: {{amount}}, {{amount}}",
		},
		{
			"unused variables",
			with(func(d *sms.TemplateData) { d.Content = "Hi {{firstName}}" }),
			"Unused variables defined: fund",
		},
	}
	for _, tt := range tests {
		runHTTPTests(t, app, []httpTest{{
			name: tt.name, method: http.MethodPost, path: "/api/sms/templates", token: token, body: tt.body,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: tt.msg}),
		}})
	}

	runHTTPTests(t, app, []httpTest{
		{name: "anonymous", method: http.MethodPost, path: "/api/sms/templates", body: tplBody(valid), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errAuth)},
	})

	t.Run("success", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/sms/templates", token, tplBody(valid))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var tpl sms.Template
		decode(t, rec, &tpl)
		assert.NotEmpty(t, tpl.ID)
		assert.Equal(t, "Welcome", tpl.Name)
		assert.True(t, tpl.IsActive)
		assert.Equal(t, sms.LanguageEN, tpl.Language)
		assert.Equal(t, []string{}, tpl.Tags)
		assert.Equal(t, greetingVars, tpl.Variables)
		assert.Zero(t, tpl.UsageCount)
		require.NotNil(t, tpl.CreatedBy)
		assert.Equal(t, sms.UserRef{ID: jane.ID, Username: "jane"}, *tpl.CreatedBy)
		require.NotNil(t, tpl.UpdatedBy)
		assert.Equal(t, jane.ID, tpl.UpdatedBy.ID)
	})
}

func Test_templateApi_query(t *testing.T) {
	app := setup(t)
	jane := createUser(t, "jane", user.RoleUser, true)
	token := getToken(t, jane)

	createTemplate(t, "Alpha", "onboarding", "en", true)
	createTemplate(t, "Bravo", "onboarding", "fr", false)
	createTemplate(t, "Charlie", "alerts", "en", true)
	createTemplate(t, "Delta", "alerts", "es", true)

	tests := []struct {
		name      string
		query     string
		want      []string
		wantTotal int
		wantPages int
	}{
		{"sort descending", "?sortBy=name", []string{"Delta", "Charlie", "Bravo", "Alpha"}, 4, 1},
		{"sort by name", "?sortBy=name&sortOrder=asc", []string{"Alpha", "Bravo", "Charlie", "Delta"}, 4, 1},
		{"category", "?category=alerts&sortBy=name&sortOrder=asc", []string{"Charlie", "Delta"}, 2, 1},
		{"language", "?language=FR", []string{"Bravo"}, 1, 1},
		{"active", "?status=active&sortBy=name&sortOrder=asc", []string{"Alpha", "Charlie", "Delta"}, 3, 1},
		{"inactive", "?status=inactive", []string{"Bravo"}, 1, 1},
		{"search", "?search=harl", []string{"Charlie"}, 1, 1},
		{"search tags", "?search=statements&limit=1&sortBy=name&sortOrder=asc", []string{"Alpha"}, 4, 4},
		{"search tag json", "?search=%22statements%22", []string{}, 0, 0},
		{"second page", "?page=2&limit=3&sortBy=name&sortOrder=asc", []string{"Delta"}, 4, 2},
		{"page past the end", "?page=9&limit=3", []string{}, 4, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, "/api/sms/templates"+tt.query, token)
			app.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var resp TemplateListResponse
			decode(t, rec, &resp)
			assert.Equal(t, tt.want, templateNames(resp.Templates))
			assert.Equal(t, tt.wantTotal, resp.Pagination.Total)
			assert.Equal(t, tt.wantPages, resp.Pagination.Pages)
		})
	}

	t.Run("stats", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/sms/templates/stats", token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var stats sms.TemplateStats
		decode(t, rec, &stats)
		assert.Equal(t, sms.TemplateStats{
			TotalTemplates:    4,
			ActiveTemplates:   3,
			TotalUsage:        0,
			AvgVariables:      2,
			CategoryBreakdown: map[string]int{"onboarding": 2, "alerts": 2},
		}, stats)
	})
}

func Test_templateApi_detail(t *testing.T) {
	app := setup(t)
	ctx := context.Background()
	jane := createUser(t, "jane", user.RoleUser, true)
	token := getToken(t, jane)
	tpl := createTemplate(t, "Statement", "statements", "en", true)

	notFound := marchallObj(t, httpErr{Error: "Template not found"})
	runHTTPTests(t, app, []httpTest{
		{name: "unknown", path: "/api/sms/templates/lol", token: token, wantCode: http.StatusNotFound, wantData: notFound},
		{name: "clone unknown", method: http.MethodPost, path: "/api/sms/templates/lol/clone", token: token, wantCode: http.StatusNotFound, wantData: notFound},
		{
			name: "update invalid", method: http.MethodPut, path: "/api/sms/templates/" + tpl.ID, token: token,
			body: []byte(`{"name":"Statement","content":"Hi","category":""}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "Invalid category."}),
		},
	})

	t.Run("retrieve", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/sms/templates/"+tpl.ID, token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got sms.Template
		decode(t, rec, &got)
		assert.Equal(t, tpl.ID, got.ID)
		assert.Equal(t, tpl.Content, got.Content)
	})

	t.Run("update", func(t *testing.T) {
		body := marchallObj(t, sms.TemplateData{
			Name:      "Statement v2",
			Content:   "Dear {{firstName}}, see your statement.",
			Category:  "statements",
			Variables: []sms.Variable{{Name: "First name", Key: "firstName", Required: true}},
			Language:  "es",
			SenderID:  "QuantumMF",
			Metadata:  map[string]string{"owner": "ops"},
		})
		req, rec := newAuthRequest(http.MethodPut, "/api/sms/templates/"+tpl.ID, token, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got sms.Template
		decode(t, rec, &got)
		assert.Equal(t, "Statement v2", got.Name)
		assert.Equal(t, "es", got.Language)
		assert.Equal(t, "QuantumMF", got.SenderID)
		assert.True(t, got.IsActive, "isActive is kept when omitted")
		assert.Equal(t, map[string]string{"owner": "ops"}, got.Metadata)
		require.NotNil(t, got.UpdatedBy)
		assert.Equal(t, jane.ID, got.UpdatedBy.ID)
		require.NotNil(t, got.CreatedBy)
		assert.Equal(t, seedRef(t).ID, got.CreatedBy.ID)
	})

	var clone sms.Template
	t.Run("clone", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/sms/templates/"+tpl.ID+"/clone", token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		decode(t, rec, &clone)
		assert.NotEqual(t, tpl.ID, clone.ID)
		assert.Equal(t, "Statement v2 (Clone)", clone.Name)
		assert.Equal(t, "Dear {{firstName}}, see your statement.", clone.Content)
		assert.Zero(t, clone.UsageCount)
		assert.Nil(t, clone.LastUsed)
		require.NotNil(t, clone.CreatedBy)
		assert.Equal(t, jane.ID, clone.CreatedBy.ID)
	})

	t.Run("delete in use", func(t *testing.T) {
		sch := createSchedule(t, tpl.ID, "Monthly")

		body := marchallObj(t, sms.TemplateData{
			Name:      "Statement v3",
			Content:   "Dear {{firstName}}, see your statement.",
			Category:  "statements",
			Variables: []sms.Variable{{Name: "First name", Key: "firstName", Required: true}},
		})
		req, rec := newAuthRequest(http.MethodPut, "/api/sms/templates/"+tpl.ID, token, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got sms.Template
		decode(t, rec, &got)
		assert.Equal(t, 1, got.UsageCount, "updates keep the usage recorded by schedules")
		require.NotNil(t, got.LastUsed)
		assert.True(t, sch.CreatedAt.Equal(*got.LastUsed))

		runHTTPTests(t, app, []httpTest{{
			name: "refused", method: http.MethodDelete, path: "/api/sms/templates/" + tpl.ID, token: token,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "Template is used by existing schedules"}),
		}})
		require.NoError(t, schRepo.DeleteSchedule(ctx, sch.ID))
	})

	runHTTPTests(t, app, []httpTest{
		{
			name: "delete", method: http.MethodDelete, path: "/api/sms/templates/" + tpl.ID, token: token,
			wantCode: http.StatusOK, wantData: marchallObj(t, httpMsg{Message: "Template deleted successfully"}),
		},
		{name: "deleted", path: "/api/sms/templates/" + tpl.ID, token: token, wantCode: http.StatusNotFound, wantData: notFound},
		{name: "clone survives", path: "/api/sms/templates/" + clone.ID, token: token, wantCode: http.StatusOK},
	})
}

func Test_templateApi_preview(t *testing.T) {
	app := setup(t)
	token := getToken(t, createUser(t, "jane", user.RoleUser, true))

	body := func(data map[string]string) []byte {
		return marchallObj(t, sms.PreviewData{
			Content:   "Hi {{firstName}}, your {{fund}} statement is ready.",
			Variables: greetingVars,
			Data:      data,
		})
	}

	runHTTPTests(t, app, []httpTest{
		{
			name: "compiled", method: http.MethodPost, path: "/api/sms/templates/preview", token: token,
			body:     body(map[string]string{"firstName": "Ada", "fund": "Growth"}),
			wantCode: http.StatusOK, wantData: marchallObj(t, PreviewResponse{Preview: "Hi Ada, your Growth statement is ready."}),
		},
		{
			name: "optional variable missing", method: http.MethodPost, path: "/api/sms/templates/preview", token: token,
			body:     body(map[string]string{"firstName": "Ada"}),
			wantCode: http.StatusOK, wantData: marchallObj(t, PreviewResponse{Preview: "Hi Ada, your  statement is ready."}),
		},
		{
			name: "required variable missing", method: http.MethodPost, path: "/api/sms/templates/preview", token: token,
			body:     body(map[string]string{"fund": "Growth"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "Template validation failed: Missing required variable: First name (firstName)"}),
		},
	})
}
