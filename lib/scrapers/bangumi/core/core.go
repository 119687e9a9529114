package core

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http/cookiejar"
	"net/url"
	"slices"
	"strings"
	"time"

	"bgmtrack/lib/scrapers/bangumi/extract"
	"bgmtrack/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/bangumi/core")

var LoginFailed = fmt.Errorf("Failed to login to your account.")
var NotLoggedIn = fmt.Errorf("You are not logged in.")

const welcomeMarker = "欢迎您回来。现在将转入登录前页面"

// the mirrors the service runs on
var mirrorHosts = []string{"bgm.tv", "bangumi.tv", "chii.in"}

type sessionState int

const (
	stateUnauthenticated sessionState = iota
	stateAuthenticated
	stateLoggedOut
)

// Client is a login session. A session authenticates at most once and
// cannot be reused after Logout.
type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client

	state  sessionState
	gh     string
	userId string
}

type ClientOptions struct {
	// BaseUrl defaults to https://bgm.tv. The host must be one of the
	// official mirrors or an ip literal (a self-hosted instance).
	BaseUrl string
}

func allowedHost(host string) bool {
	if slices.Contains(mirrorHosts, host) {
		return true
	}
	return net.ParseIP(host) != nil
}

func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	if opts.BaseUrl == "" {
		opts.BaseUrl = "https://bgm.tv"
	}
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}
	if !allowedHost(baseUrl.Hostname()) {
		return nil, fmt.Errorf("unsupported domain %q, must be one of %v", baseUrl.Hostname(), mirrorHosts)
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetTimeout(time.Second * 30)

	telemetry.InstrumentResty(client, "scrapers/bangumi/http")

	c := &Client{
		BaseUrl: baseUrl,
		Http:    client,
	}
	return c, nil
}

// Login authenticates with the email and password of an existing account,
// then caches the anti-forgery token and the account's user id off the
// home page. Failed credentials surface as LoginFailed.
func (c *Client) Login(ctx context.Context, email, password string) error {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	if c.state != stateUnauthenticated {
		err := fmt.Errorf("this session has already logged in, create a new client instead")
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	res, err := c.Http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"email":       email,
			"password":    password,
			"loginsubmit": "登录",
		}).
		Post("/FollowTheRabbit")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to make login request")
		return err
	}
	if !strings.Contains(res.String(), welcomeMarker) {
		span.SetStatus(codes.Error, LoginFailed.Error())
		return LoginFailed
	}

	res, err = c.Http.R().
		SetContext(ctx).
		Get("/")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to request home page after login")
		return err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse home page html")
		return err
	}

	gh := extract.LogoutToken(doc)
	if gh == "" {
		span.SetStatus(codes.Error, "failed to find logout token")
		return fmt.Errorf("could not find the logout token on the home page")
	}
	userId := extract.UserId(doc)
	if userId == "" {
		span.SetStatus(codes.Error, "failed to find user id")
		return fmt.Errorf("could not find your user id on the home page")
	}

	c.gh = gh
	c.userId = userId
	c.state = stateAuthenticated
	return nil
}

// Logout invalidates the session. The session is dead once logout is
// attempted, even when the logout request itself fails.
func (c *Client) Logout(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "client:Logout")
	defer span.End()

	if err := c.require(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	c.state = stateLoggedOut

	_, err := c.Http.R().
		SetContext(ctx).
		Get("/logout/" + c.gh)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to make logout request")
		return err
	}
	return nil
}

func (c *Client) require() error {
	if c.state != stateAuthenticated {
		return NotLoggedIn
	}
	return nil
}

// Get issues a GET on the session. Every read and write goes through Get
// or PostForm, which both fail with NotLoggedIn outside the session's
// authenticated window.
func (c *Client) Get(ctx context.Context, path string) (*resty.Response, error) {
	if err := c.require(); err != nil {
		return nil, err
	}
	return c.Http.R().
		SetContext(ctx).
		Get(path)
}

// PostForm issues a form POST on the session under the same guard as Get.
func (c *Client) PostForm(ctx context.Context, path string, form map[string]string) (*resty.Response, error) {
	if err := c.require(); err != nil {
		return nil, err
	}
	return c.Http.R().
		SetContext(ctx).
		SetFormData(form).
		Post(path)
}

// Gh returns the anti-forgery token mutating endpoints require. It is
// retrieved once at login and never refreshed. If the service rotates it
// mid-session, writes start failing until the caller re-authenticates.
func (c *Client) Gh() string {
	return c.gh
}

// UserId returns the id of the logged-in account.
func (c *Client) UserId() string {
	return c.userId
}
