package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	. "github.com/pixelforegllc/quantummftools-dash/apps/api/echo"
	"github.com/pixelforegllc/quantummftools-dash/assets"
	"github.com/pixelforegllc/quantummftools-dash/core"
	"github.com/pixelforegllc/quantummftools-dash/core/apikey"
	"github.com/pixelforegllc/quantummftools-dash/core/sms"
	"github.com/pixelforegllc/quantummftools-dash/core/user"
	"github.com/pixelforegllc/quantummftools-dash/services/email"
	"github.com/pixelforegllc/quantummftools-dash/services/logger"
	"github.com/pixelforegllc/quantummftools-dash/storage/database/sqlx"
	"github.com/pixelforegllc/quantummftools-dash/tests"
)

var (
	conf    *core.Config
	usrRepo user.Repository
	usrSvc  *user.ServiceMock
	keyRepo apikey.Repository
	keySvc  apikey.Service
	tplRepo sms.TemplateRepository
	schRepo sms.ScheduleRepository

	errAuth = httpErr{Error: "Please authenticate."}
)

// setup prepares a fresh database and the Server. edits tweak the configuration first.
func setup(t *testing.T, edits ...func(*core.Config)) Server {
	conf = testutil.NewConfig()
	for _, edit := range edits {
		edit(conf)
	}

	// set up DB & repos
	db := testutil.PrepareDB(t)
	usrRepo = sqlxrepos.NewUserRepository(db)
	keyRepo = sqlxrepos.NewAPIKeyRepository(db)
	tplRepo = sqlxrepos.NewTemplateRepository(db)
	schRepo = sqlxrepos.NewScheduleRepository(db)

	// set up services
	logger := logsvc.NewRollbarLogger(zaptest.NewLogger(t), conf)
	logger.Enable(false)
	if err := core.ParseEmailTemplates(assets.FS, conf); err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	if err := user.LoadCommonPasswords(assets.FS, assets.CommonPasswordsFile); err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	emailsvc.SentMessages = nil
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	usrSvc = user.NewServiceMock(usrRepo, mailSvc, conf)

	cipher, err := apikey.NewCipher(conf.SecretKey)
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	keySvc = apikey.NewService(keyRepo, cipher)

	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)

	// set up server
	return NewServer(&Options{
		Conf:           conf,
		Logger:         logger,
		DisableReqLogs: true,
		Validate:       validate,
		Translator:     translator,
		UserSvc:        usrSvc,
		APIKeySvc:      keySvc,
		TemplateSvc:    sms.NewTemplateService(tplRepo, schRepo),
		ScheduleSvc:    sms.NewScheduleService(schRepo, tplRepo),
	})
}

type httpErr struct {
	Error string `json:"error"`
}

type httpMsg struct {
	Message string `json:"message"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, usr user.User, origIat ...int64) string {
	token, err := GenerateToken(conf, GetUserClaims(conf, usr, origIat...))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func createUser(t *testing.T, uname, role string, isActive bool) user.User {
	return testutil.CreateUser(t, usrRepo, uname, uname+"@quantummf.test", "", role, isActive)
}

// seedRef returns the author of the fixtures created outside of the API.
func seedRef(t *testing.T) sms.UserRef {
	usr, err := usrRepo.GetUser(context.Background(), user.GetFilter{Username: "seed"})
	if err != nil {
		usr = createUser(t, "seed", user.RoleAdmin, true)
	}
	return sms.UserRef{ID: usr.ID, Username: usr.Username}
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

// decode unmarshals the response body into v.
func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode(%s) failed: %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	_, ok1 := j1.([]interface{})
	_, ok2 := j2.([]interface{})
	if !(ok1 && ok2) {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, app Server, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
