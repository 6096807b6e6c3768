package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/ada/apps/api/echo"
	"github.com/trezcool/ada/core"
	"github.com/trezcool/ada/core/audit"
	"github.com/trezcool/ada/core/receipt"
	"github.com/trezcool/ada/core/user"
	sqlxrepos "github.com/trezcool/ada/storage/database/sqlx"
	"github.com/trezcool/ada/testutil/dbtest"
)

var testConf = &core.Config{
	AppName:   "Ada",
	TestMode:  true,
	SecretKey: "test-secret",
	Server:    core.ServerConfig{JWTExpirationDelta: time.Hour},
}

type testApp struct {
	echoapi.Server
	env   *dbtest.Env
	trail *audit.Trail
}

func setup(t *testing.T) *testApp {
	env := dbtest.NewEnv(t)
	trail := audit.NewTrail(sqlxrepos.NewAuditRepository(env.DB), env.Logger, 16)
	t.Cleanup(trail.Close)

	srv := echoapi.NewServer(echoapi.Options{
		Conf:           testConf,
		Logger:         env.Logger,
		Validator:      env.Validator,
		DisableReqLogs: true,
		Users:          env.Users,
		Students:       env.Students,
		Fees:           env.Fees,
		Rates:          env.Rates,
		Payments:       env.Payments,
		Receipts:       receipt.NewRenderer("Ada Primary School", env.Payments, env.Students),
		Reports:        env.Reports,
		Audit:          trail,
	})
	t.Cleanup(func() { _ = srv.Close() })
	return &testApp{Server: srv, env: env, trail: trail}
}

type httpErr struct {
	Error string `json:"error"`
}

func getToken(t *testing.T, usr user.User) string {
	token, err := echoapi.GenerateToken(echoapi.GetUserClaims(usr, testConf), testConf.SecretKey)
	require.NoError(t, err)
	return token
}

// do serves a request and returns the recorder. body is marshalled to JSON unless it is a string.
func (app *testApp) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), "body: %s", rec.Body.String())
}

func checkCode(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	require.Equal(t, want, rec.Code, "body: %s", rec.Body.String())
}

var _ http.Handler = echoapi.Server(nil)
