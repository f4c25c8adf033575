package gkcf

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sankforever/gkcx/lib/restyutil"
	"github.com/sankforever/gkcx/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("scrapers/gkcf")

// ErrTransport is returned when the portal cannot be reached or replies with
// something that cannot be interpreted.
var ErrTransport = errors.New("gkcf: transport error")

const DefaultBaseUrl = "http://gkcf.jxedu.gov.cn"

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.114 Safari/537.36"

type ClientOptions struct {
	BaseUrl string
	// Timeout applies to every request, defaults to 30 seconds.
	Timeout time.Duration
	// CloudflareBypass wraps the transport with browser-like TLS and headers.
	CloudflareBypass bool
	// RecordBodies attaches http bodies to trace spans.
	RecordBodies bool
	// Dump receives a copy of every http exchange, it can be nil.
	Dump restyutil.Output
	// Now is used for the cache busting parameter, defaults to time.Now.
	Now func() time.Time
}

// Client creates sessions against the portal, it holds no per-session state.
type Client struct {
	baseUrl *url.URL
	opts    ClientOptions
	dumpIds *atomic.Uint64
}

func NewClient(opts ClientOptions) (*Client, error) {
	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseUrl
	}
	opts.BaseUrl = strings.TrimRight(opts.BaseUrl, "/")
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}
	if baseUrl.Scheme == "" || baseUrl.Host == "" {
		return nil, fmt.Errorf("base url must be absolute: %q", opts.BaseUrl)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Client{baseUrl: baseUrl, opts: opts, dumpIds: &atomic.Uint64{}}, nil
}

// Origin is the scheme and host of the portal, without a trailing slash.
func (c *Client) Origin() string {
	return fmt.Sprintf("%s://%s", c.baseUrl.Scheme, c.baseUrl.Host)
}

// Session is a cookie-bearing http context. The portal ties a captcha to the
// session that fetched it, so FetchCaptcha and SubmitLogin must be called on
// the same Session.
type Session struct {
	client *Client
	http   *resty.Client
}

// NewSession returns a session with an empty cookie jar.
func (c *Client) NewSession() (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(c.opts.BaseUrl)
	httpClient.SetCookieJar(jar)
	httpClient.SetTimeout(c.opts.Timeout)
	httpClient.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(c.baseUrl.Hostname()))
	if c.opts.CloudflareBypass {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}

	origin := c.Origin()
	httpClient.SetHeaders(map[string]string{
		"Origin":          origin,
		"Referer":         origin + "/",
		"User-Agent":      userAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.9",
		"Accept-Language": "zh-CN,zh;q=0.9",
	})

	telemetry.InstrumentResty(httpClient, "scrapers/gkcf/http", telemetry.RestyOptions{
		RecordBodies: c.opts.RecordBodies,
	})
	restyutil.DumpMessages(httpClient, "gkcf", c.dumpIds, c.opts.Dump)

	return &Session{client: c, http: httpClient}, nil
}

type captchaEnvelope struct {
	Data struct {
		Img string `json:"Img"`
	} `json:"Data"`
}

func decodeImage(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	// tolerate data urls: data:image/png;base64,....
	if strings.HasPrefix(encoded, "data:") {
		_, after, found := strings.Cut(encoded, ",")
		if !found {
			return nil, fmt.Errorf("malformed data url")
		}
		encoded = after
	}
	return base64.StdEncoding.DecodeString(encoded)
}

// FetchCaptcha requests a new captcha image for this session.
func (s *Session) FetchCaptcha(ctx context.Context) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "session:FetchCaptcha")
	defer span.End()

	res, err := s.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json, text/javascript, */*; q=0.01").
		SetQueryParam("t", strconv.FormatInt(s.client.opts.Now().UnixMilli(), 10)).
		Get("/captcha/getcode")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch captcha")
		return nil, fmt.Errorf("%w: fetch captcha: %w", ErrTransport, err)
	}
	if res.IsError() {
		span.SetStatus(codes.Error, "unexpected captcha status")
		return nil, fmt.Errorf("%w: fetch captcha: unexpected status %s", ErrTransport, res.Status())
	}

	var envelope captchaEnvelope
	err = json.Unmarshal(res.Body(), &envelope)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to unmarshal captcha envelope")
		return nil, fmt.Errorf("%w: captcha envelope: %w", ErrTransport, err)
	}
	if envelope.Data.Img == "" {
		span.SetStatus(codes.Error, "captcha envelope has no image")
		return nil, fmt.Errorf("%w: captcha envelope has no Data.Img field", ErrTransport)
	}

	img, err := decodeImage(envelope.Data.Img)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to decode captcha image")
		return nil, fmt.Errorf("%w: captcha image: %w", ErrTransport, err)
	}
	span.SetAttributes(attribute.Int("captcha.bytes", len(img)))
	return img, nil
}

// LoginFields are the already encoded values of the login form.
type LoginFields struct {
	Key1 string
	Key2 string
	Key3 string
}

// SubmitLogin posts the login form and returns the response document with
// its relative asset references made absolute.
func (s *Session) SubmitLogin(ctx context.Context, fields LoginFields) (string, error) {
	ctx, span := tracer.Start(ctx, "session:SubmitLogin")
	defer span.End()

	res, err := s.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"key1": fields.Key1,
			"key2": fields.Key2,
			"key3": fields.Key3,
		}).
		Post("/")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit login")
		return "", fmt.Errorf("%w: submit login: %w", ErrTransport, err)
	}
	if res.IsError() {
		span.SetStatus(codes.Error, "unexpected login status")
		return "", fmt.Errorf("%w: submit login: unexpected status %s", ErrTransport, res.Status())
	}

	return RewriteRelativeRefs(res.String(), s.client.Origin()), nil
}
