package core

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bgmtrack/lib/telemetry"

	"github.com/stretchr/testify/require"
)

const homePage = `<html><body>
<div class="idBadgerNeue"><a href="/user/271502" class="avatar"></a></div>
<div id="dock"><a href="/logout/8f0a3bd1">登出</a></div>
</body></html>`

const welcomePage = `<html><body><div id="colunmNotice">欢迎您回来。现在将转入登录前页面</div></body></html>`

const badPasswordPage = `<html><body><div id="colunmNotice">密码错误，请检查后重试</div></body></html>`

type fakeService struct {
	logoutPaths []string
}

func (s *fakeService) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/FollowTheRabbit":
			if r.FormValue("email") == "spike@example.com" && r.FormValue("password") == "hunter2" {
				_, _ = w.Write([]byte(welcomePage))
				return
			}
			_, _ = w.Write([]byte(badPasswordPage))
		case r.URL.Path == "/":
			_, _ = w.Write([]byte(homePage))
		case strings.HasPrefix(r.URL.Path, "/logout/"):
			s.logoutPaths = append(s.logoutPaths, r.URL.Path)
			_, _ = w.Write([]byte(`<html><body></body></html>`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func TestNewClientDomainCheck(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bangumi/core")
	defer cleanup()

	ctx := context.Background()

	_, err := NewClient(ctx, ClientOptions{})
	require.NoError(t, err)
	_, err = NewClient(ctx, ClientOptions{BaseUrl: "https://bangumi.tv"})
	require.NoError(t, err)

	_, err = NewClient(ctx, ClientOptions{BaseUrl: "https://example.com"})
	require.Error(t, err)
}

func TestLogin(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bangumi/core")
	defer cleanup()

	ctx, span := tracer.Start(context.Background(), "TestLogin")
	defer span.End()

	svc := &fakeService{}
	ts := httptest.NewServer(svc.handler())
	defer ts.Close()

	client, err := NewClient(ctx, ClientOptions{BaseUrl: ts.URL})
	require.NoError(t, err)

	err = client.Login(ctx, "spike@example.com", "hunter2")
	require.NoError(t, err)
	require.Equal(t, "8f0a3bd1", client.Gh())
	require.Equal(t, "271502", client.UserId())

	err = client.Login(ctx, "spike@example.com", "hunter2")
	require.Error(t, err)
}

func TestLoginFailed(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bangumi/core")
	defer cleanup()

	ctx, span := tracer.Start(context.Background(), "TestLoginFailed")
	defer span.End()

	svc := &fakeService{}
	ts := httptest.NewServer(svc.handler())
	defer ts.Close()

	client, err := NewClient(ctx, ClientOptions{BaseUrl: ts.URL})
	require.NoError(t, err)

	err = client.Login(ctx, "spike@example.com", "wrong")
	require.ErrorIs(t, err, LoginFailed)

	// failed credentials do not burn the session
	err = client.Login(ctx, "spike@example.com", "hunter2")
	require.NoError(t, err)
}

func TestSessionGuard(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bangumi/core")
	defer cleanup()

	ctx, span := tracer.Start(context.Background(), "TestSessionGuard")
	defer span.End()

	svc := &fakeService{}
	ts := httptest.NewServer(svc.handler())
	defer ts.Close()

	client, err := NewClient(ctx, ClientOptions{BaseUrl: ts.URL})
	require.NoError(t, err)

	_, err = client.Get(ctx, "/subject/253")
	require.ErrorIs(t, err, NotLoggedIn)
	_, err = client.PostForm(ctx, "/subject/253/interest/update", map[string]string{})
	require.ErrorIs(t, err, NotLoggedIn)
}

func TestLogout(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bangumi/core")
	defer cleanup()

	ctx, span := tracer.Start(context.Background(), "TestLogout")
	defer span.End()

	svc := &fakeService{}
	ts := httptest.NewServer(svc.handler())
	defer ts.Close()

	client, err := NewClient(ctx, ClientOptions{BaseUrl: ts.URL})
	require.NoError(t, err)
	err = client.Login(ctx, "spike@example.com", "hunter2")
	require.NoError(t, err)

	err = client.Logout(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"/logout/8f0a3bd1"}, svc.logoutPaths)

	// the session is dead for good
	_, err = client.Get(ctx, "/")
	require.ErrorIs(t, err, NotLoggedIn)
	err = client.Login(ctx, "spike@example.com", "hunter2")
	require.Error(t, err)
}
