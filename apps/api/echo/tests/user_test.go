package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelforegllc/quantummftools-dash/core/user"
	"github.com/pixelforegllc/quantummftools-dash/tests"
)

func usernames(t *testing.T, data []byte) []string {
	t.Helper()
	var users []user.User
	require.NoError(t, json.Unmarshal(data, &users))
	names := make([]string, 0, len(users))
	for _, usr := range users {
		names = append(names, usr.Username)
	}
	return names
}

func Test_userApi_permissions(t *testing.T) {
	app := setup(t)
	manager := createUser(t, "manager", user.RoleManager, true)
	jane := createUser(t, "jane", user.RoleUser, true)

	denied := marchallObj(t, httpErr{Error: "Access denied."})
	for _, path := range []string{"/api/users", "/api/users/roles", "/api/users/" + jane.ID} {
		runHTTPTests(t, app, []httpTest{
			{name: "anonymous " + path, path: path, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errAuth)},
			{name: "user " + path, path: path, token: getToken(t, jane), wantCode: http.StatusForbidden, wantData: denied},
			{name: "manager " + path, path: path, token: getToken(t, manager), wantCode: http.StatusForbidden, wantData: denied},
		})
	}
}

func Test_userApi_query(t *testing.T) {
	app := setup(t)
	now := time.Now()

	admin := testutil.CreateUser(t, usrRepo, "admin", "admin@quantummf.test", "", user.RoleAdmin, true, now.Add(-4*time.Hour))
	testutil.CreateUser(t, usrRepo, "alice", "alice@quantummf.test", "", user.RoleManager, true, now.Add(-3*time.Hour))
	testutil.CreateUser(t, usrRepo, "bob", "bob@corp.test", "", user.RoleUser, false, now.Add(-2*time.Hour))
	testutil.CreateUser(t, usrRepo, "carol", "carol@quantummf.test", "", user.RoleUser, true, now.Add(-time.Hour))
	token := getToken(t, admin)

	path := func(params url.Values) string {
		return "/api/users?" + params.Encode()
	}

	tests := []struct {
		name   string
		params url.Values
		want   []string
	}{
		{name: "newest first by default", params: url.Values{}, want: []string{"carol", "bob", "alice", "admin"}},
		{name: "ordering", params: url.Values{"ordering": {"username"}}, want: []string{"admin", "alice", "bob", "carol"}},
		{name: "multi ordering", params: url.Values{"ordering": {"-role,username"}}, want: []string{"bob", "carol", "alice", "admin"}},
		{name: "unknown ordering field", params: url.Values{"ordering": {"password_hash"}}, want: []string{"carol", "bob", "alice", "admin"}},
		{name: "search username", params: url.Values{"search": {"AL"}}, want: []string{"alice"}},
		{name: "search email", params: url.Values{"search": {"corp.test"}}, want: []string{"bob"}},
		{name: "roles", params: url.Values{"role": {"user", "MANAGER"}, "ordering": {"username"}}, want: []string{"alice", "bob", "carol"}},
		{name: "inactive", params: url.Values{"isActive": {"false"}}, want: []string{"bob"}},
		{name: "active users", params: url.Values{"isActive": {"true"}, "role": {"user"}}, want: []string{"carol"}},
		{name: "no match", params: url.Values{"search": {"lol"}}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, path(tt.params), token)
			app.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, tt.want, usernames(t, rec.Body.Bytes()))
		})
	}

	t.Run("roles", func(t *testing.T) {
		runHTTPTests(t, app, []httpTest{
			{name: "list", path: "/api/users/roles", token: token, wantCode: http.StatusOK, wantData: marchallObj(t, user.Roles)},
		})
	})
}

func Test_userApi_create(t *testing.T) {
	app := setup(t)
	admin := createUser(t, "admin", user.RoleAdmin, true)
	createUser(t, "jane", user.RoleUser, true)
	token := getToken(t, admin)

	newUser := func(uname, email, pwd, confirm, role string) []byte {
		return marchallObj(t, user.NewUser{Username: uname, Email: email, Password: pwd, PasswordConfirm: confirm, Role: role})
	}

	runHTTPTests(t, app, []httpTest{
		{
			name: "missing fields", method: http.MethodPost, path: "/api/users", token: token, body: []byte(`{}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "invalid fields", method: http.MethodPost, path: "/api/users", token: token,
			body:     newUser("j d", "lol", "N3w-Secret-Pass", "N3w-Secret-Pas", "root"),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{
				"username":"only alphanumeric characters and underscores are allowed",
				"email":"email must be a valid email address",
				"passwordConfirm":"passwordConfirm must be equal to Password",
				"role":"invalid role"
			}`),
		},
		{
			name: "password policy", method: http.MethodPost, path: "/api/users", token: token,
			body:     newUser("john", "john@quantummf.test", "12345678901", "12345678901", ""),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"password":"password cannot be entirely numeric"}`),
		},
		{
			name: "username taken", method: http.MethodPost, path: "/api/users", token: token,
			body:     newUser("jane", "john@quantummf.test", "N3w-Secret-Pass", "N3w-Secret-Pass", ""),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"username":"a user with this username already exists"}`),
		},
		{
			name: "email taken", method: http.MethodPost, path: "/api/users", token: token,
			body:     newUser("john", "JANE@quantummf.test", "N3w-Secret-Pass", "N3w-Secret-Pass", ""),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"email":"a user with this email already exists"}`),
		},
	})

	t.Run("success", func(t *testing.T) {
		body := newUser(" john ", "John@QuantumMF.test", "N3w-Secret-Pass", "N3w-Secret-Pass", "Manager")
		req, rec := newAuthRequest(http.MethodPost, "/api/users", token, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var usr user.User
		decode(t, rec, &usr)
		assert.NotEmpty(t, usr.ID)
		assert.Equal(t, "john", usr.Username)
		assert.Equal(t, "john@quantummf.test", usr.Email)
		assert.Equal(t, user.RoleManager, usr.Role)
		assert.True(t, usr.IsActive)
		assert.Equal(t, []string{}, usr.Permissions)

		dbUsr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
		require.NoError(t, err)
		assert.NoError(t, dbUsr.CheckPassword("N3w-Secret-Pass"))
	})
}

func Test_userApi_retrieveUpdate(t *testing.T) {
	app := setup(t)
	ctx := context.Background()
	admin := createUser(t, "admin", user.RoleAdmin, true)
	jane := createUser(t, "jane", user.RoleUser, true)
	createUser(t, "bob", user.RoleUser, true)
	token := getToken(t, admin)

	notFound := marchallObj(t, httpErr{Error: "User not found"})
	runHTTPTests(t, app, []httpTest{
		{name: "retrieve unknown", path: "/api/users/lol", token: token, wantCode: http.StatusNotFound, wantData: notFound},
		{name: "update unknown", method: http.MethodPut, path: "/api/users/lol", token: token, body: []byte(`{}`), wantCode: http.StatusNotFound, wantData: notFound},
		{
			name: "email taken", method: http.MethodPut, path: "/api/users/" + jane.ID, token: token,
			body:     []byte(`{"email":"bob@quantummf.test"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"email":"a user with this email already exists"}`),
		},
		{
			name: "password without confirmation", method: http.MethodPut, path: "/api/users/" + jane.ID, token: token,
			body:     []byte(`{"password":"N3w-Secret-Pass"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"passwordConfirm":"this field is required"}`),
		},
		{
			name: "password policy", method: http.MethodPut, path: "/api/users/" + jane.ID, token: token,
			body:     []byte(`{"password":"N3w Secret Pass","passwordConfirm":"N3w Secret Pass"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"password":"password must not contain whitespace"}`),
		},
	})

	t.Run("retrieve", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/users/"+jane.ID, token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var usr user.User
		decode(t, rec, &usr)
		assert.Equal(t, jane.ID, usr.ID)
		assert.Equal(t, jane.Email, usr.Email)
	})

	t.Run("update", func(t *testing.T) {
		body := []byte(`{
			"email":"Jane.Doe@quantummf.test",
			"role":"manager",
			"isActive":false,
			"permissions":["apikeys:usage"],
			"adUsername":"QUANTUM\\jdoe",
			"password":"N3w-Secret-Pass",
			"passwordConfirm":"N3w-Secret-Pass"
		}`)
		req, rec := newAuthRequest(http.MethodPut, "/api/users/"+jane.ID, token, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		usr, err := usrRepo.GetUser(ctx, user.GetFilter{ID: jane.ID})
		require.NoError(t, err)
		assert.Equal(t, "jane", usr.Username, "usernames are immutable")
		assert.Equal(t, "jane.doe@quantummf.test", usr.Email)
		assert.Equal(t, user.RoleManager, usr.Role)
		assert.False(t, usr.IsActive)
		assert.Equal(t, []string{"apikeys:usage"}, usr.Permissions)
		assert.Equal(t, `QUANTUM\jdoe`, usr.ADUsername)
		assert.NoError(t, usr.CheckPassword("N3w-Secret-Pass"))
	})

	t.Run("partial update", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/api/users/"+jane.ID, token, []byte(`{"isActive":true}`))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		usr, err := usrRepo.GetUser(ctx, user.GetFilter{ID: jane.ID})
		require.NoError(t, err)
		assert.True(t, usr.IsActive)
		assert.Equal(t, user.RoleManager, usr.Role)
		assert.NoError(t, usr.CheckPassword("N3w-Secret-Pass"))
	})
}

func Test_userApi_destroy(t *testing.T) {
	app := setup(t)
	ctx := context.Background()
	admin := createUser(t, "admin", user.RoleAdmin, true)
	jane := createUser(t, "jane", user.RoleUser, true)
	bob := createUser(t, "bob", user.RoleUser, true)
	carol := createUser(t, "carol", user.RoleUser, true)
	token := getToken(t, admin)
	denied := marchallObj(t, httpErr{Error: "Access denied."})

	runHTTPTests(t, app, []httpTest{
		{name: "delete self", method: http.MethodDelete, path: "/api/users/" + admin.ID, token: token, wantCode: http.StatusForbidden, wantData: denied},
		{
			name: "delete many with self", method: http.MethodDelete, path: "/api/users?id=" + bob.ID + "&id=" + admin.ID, token: token,
			wantCode: http.StatusForbidden, wantData: denied,
		},
		{name: "delete unknown", method: http.MethodDelete, path: "/api/users/lol", token: token, wantCode: http.StatusNotFound},
		{name: "delete none", method: http.MethodDelete, path: "/api/users", token: token, wantCode: http.StatusNoContent},
		{name: "delete one", method: http.MethodDelete, path: "/api/users/" + jane.ID, token: token, wantCode: http.StatusNoContent},
		{
			name: "delete many", method: http.MethodDelete, path: "/api/users?id=" + bob.ID + "&id=" + carol.ID, token: token,
			wantCode: http.StatusNoContent,
		},
	})

	users, err := usrRepo.QueryUsers(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, admin.ID, users[0].ID)
}
