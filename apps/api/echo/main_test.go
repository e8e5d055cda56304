package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/twahidin/project-lumos/core"
	"github.com/twahidin/project-lumos/core/auth"
	"github.com/twahidin/project-lumos/core/session"
	"github.com/twahidin/project-lumos/core/user"
	"github.com/twahidin/project-lumos/core/whodoc"
	"github.com/twahidin/project-lumos/services/logger"
	"github.com/twahidin/project-lumos/storage/database/inmem"
	"github.com/twahidin/project-lumos/tests"
)

const (
	superLogin = "root@lumos.test"
	superPwd   = "super-secret"
)

var errNotLoggedIn = httpErr{Error: "Not logged in"}

type testApp struct {
	*Server
	conf     *core.Config
	usrRepo  user.Repository
	docRepo  whodoc.Repository
	sessions *session.Manager
}

// setup builds a Server over the in-memory store; wrap decorates its user repository.
func setup(t *testing.T, wrap ...func(user.Repository) user.Repository) testApp {
	conf := testutil.Config(t)
	conf.Server.PublicDir = t.TempDir()
	conf.SuperAdmin.Login = superLogin
	conf.SuperAdmin.Password = superPwd

	// set up DB & repos
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	for _, w := range wrap {
		usrRepo = w(usrRepo)
	}
	docRepo := inmemdb.NewDocRepository(db)

	// set up services
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	whodoc.InitValidators(validate, translator)

	usrSvc := user.NewService(usrRepo)
	sessions := session.NewManager(inmemdb.NewSessionStore(db), session.Options{
		Secret:     []byte(conf.Session.Secret),
		TTL:        conf.Session.TTL,
		CookieName: conf.Session.CookieName,
		Issuer:     conf.AppName,
	})
	superAdmin := auth.SuperAdminCredentials{Login: conf.SuperAdmin.Login, Password: conf.SuperAdmin.Password}

	// set up server
	srv := NewServer(ServerDeps{
		Conf:       conf,
		Logger:     logsvc.NewRollbarLogger(zap.NewNop(), conf),
		UserSvc:    usrSvc,
		DocSvc:     whodoc.NewService(docRepo, usrRepo),
		Sessions:   sessions,
		Auth:       auth.NewAuthenticator(usrSvc, superAdmin),
		Guard:      auth.NewGuard(usrSvc, superAdmin),
		Validate:   validate,
		Translator: translator,
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	return testApp{Server: srv, conf: conf, usrRepo: usrRepo, docRepo: docRepo, sessions: sessions}
}

// login starts a session for p and returns its cookie.
func (app testApp) login(t *testing.T, p auth.Principal) *http.Cookie {
	_, token, err := app.sessions.Start(context.Background(), auth.SubjectOf(p))
	if err != nil {
		t.Fatalf("login() failed: %v", err)
	}
	return app.sessions.Cookie(token)
}

func (app testApp) loginUser(t *testing.T, usr user.User) *http.Cookie {
	return app.login(t, auth.StoredIdentity{User: usr})
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	cookie   *http.Cookie
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path string, cookie *http.Cookie, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, nil, data...)
}

func (tt httpTest) run(t *testing.T, app testApp) *httptest.ResponseRecorder {
	method := tt.method
	if method == "" {
		method = http.MethodGet
	}
	req, rec := newAuthRequest(method, tt.path, tt.cookie, tt.body)
	app.ServeHTTP(rec, req)
	return rec
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

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func checkRedirect(t *testing.T, rec *httptest.ResponseRecorder, location string) {
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, location, rec.Header().Get("Location"))
}

// responseCookie returns the cookie named name set by rec, if any.
func responseCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
