// Package baidu implements ocr.Provider with the Baidu AI Cloud OCR REST API.
package baidu

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sankforever/gkcx/lib/ocr"
	"github.com/sankforever/gkcx/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("ocr/baidu")

const DefaultBaseUrl = "https://aip.baidubce.com"

// recognition endpoints, accurate is slower but handles distorted glyphs better
const (
	EndpointAccurate = "/rest/2.0/ocr/v1/accurate_basic"
	EndpointGeneral  = "/rest/2.0/ocr/v1/general_basic"
)

// error codes signalling that the access token has to be fetched again
const (
	errInvalidToken = 110
	errExpiredToken = 111
)

type Options struct {
	ApiKey    string
	SecretKey string
	// BaseUrl defaults to DefaultBaseUrl.
	BaseUrl string
	// Endpoint defaults to EndpointAccurate.
	Endpoint string
	Timeout  time.Duration
	Now      func() time.Time
}

type Client struct {
	http *resty.Client
	opts Options

	token        string
	tokenExpires time.Time
}

var _ ocr.Provider = (*Client)(nil)

func NewClient(opts Options) (*Client, error) {
	if opts.ApiKey == "" || opts.SecretKey == "" {
		return nil, fmt.Errorf("baidu ocr: api key and secret key are required")
	}
	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseUrl
	}
	if opts.Endpoint == "" {
		opts.Endpoint = EndpointAccurate
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(strings.TrimRight(opts.BaseUrl, "/"))
	httpClient.SetTimeout(opts.Timeout)
	httpClient.SetHeader("Accept", "application/json")
	telemetry.InstrumentResty(httpClient, "ocr/baidu/http", telemetry.RestyOptions{})

	return &Client{http: httpClient, opts: opts}, nil
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	if c.token != "" && c.opts.Now().Before(c.tokenExpires) {
		return c.token, nil
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"grant_type":    "client_credentials",
			"client_id":     c.opts.ApiKey,
			"client_secret": c.opts.SecretKey,
		}).
		Post("/oauth/2.0/token")
	if err != nil {
		return "", fmt.Errorf("fetch access token: %w", err)
	}

	var parsed tokenResponse
	err = json.Unmarshal(res.Body(), &parsed)
	if err != nil {
		return "", fmt.Errorf("unmarshal access token (status %d): %w", res.StatusCode(), err)
	}
	if parsed.Error != "" || parsed.AccessToken == "" {
		return "", fmt.Errorf("fetch access token: %s: %s", parsed.Error, parsed.ErrorDescription)
	}

	c.token = parsed.AccessToken
	// refresh a minute early so a token never expires mid request
	c.tokenExpires = c.opts.Now().Add(time.Duration(parsed.ExpiresIn)*time.Second - time.Minute)
	return c.token, nil
}

type wordsResult struct {
	Words string `json:"words"`
}

type recognizeResponse struct {
	LogId          int64         `json:"log_id"`
	WordsResultNum int           `json:"words_result_num"`
	WordsResult    []wordsResult `json:"words_result"`
	ErrorCode      int           `json:"error_code"`
	ErrorMsg       string        `json:"error_msg"`
}

// Recognize makes exactly one recognition request, a token request is
// made beforehand when there is no valid cached token.
func (c *Client) Recognize(ctx context.Context, image []byte) ([]string, error) {
	ctx, span := tracer.Start(ctx, "client:Recognize")
	defer span.End()

	token, err := c.accessToken(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get access token")
		return nil, err
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("access_token", token).
		SetFormData(map[string]string{
			"image": base64.StdEncoding.EncodeToString(image),
		}).
		Post(c.opts.Endpoint)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to make recognize request")
		return nil, fmt.Errorf("recognize: %w", err)
	}

	var parsed recognizeResponse
	err = json.Unmarshal(res.Body(), &parsed)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to unmarshal recognize response")
		return nil, fmt.Errorf("unmarshal recognize response (status %d): %w", res.StatusCode(), err)
	}
	if parsed.ErrorCode != 0 {
		if parsed.ErrorCode == errInvalidToken || parsed.ErrorCode == errExpiredToken {
			c.token = ""
		}
		span.SetStatus(codes.Error, parsed.ErrorMsg)
		return nil, fmt.Errorf("recognize: error %d: %s", parsed.ErrorCode, parsed.ErrorMsg)
	}

	span.SetAttributes(
		attribute.Int64("baidu.log_id", parsed.LogId),
		attribute.Int("baidu.words_result_num", parsed.WordsResultNum),
	)
	if len(parsed.WordsResult) == 0 {
		return nil, ocr.ErrNoResult
	}

	out := make([]string, len(parsed.WordsResult))
	for i, w := range parsed.WordsResult {
		out[i] = w.Words
	}
	return out, nil
}
