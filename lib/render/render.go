package render

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"time"

	"github.com/sankforever/gkcx/lib/telemetry"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("lib/render")

const (
	DefaultSettle = time.Second
	// chrome refuses to capture anything larger than this in one pass
	maxDimension = 16384
)

const dimensionsScript = `() => ({
	width: document.documentElement.scrollWidth,
	height: document.documentElement.scrollHeight,
})`

type Options struct {
	// Bin is the chrome executable, when empty rod downloads or finds one.
	Bin string
	// Settle is how long to wait after resizing before the screenshot.
	Settle  time.Duration
	Timeout time.Duration
}

type Renderer struct {
	opts Options
}

func NewRenderer(opts Options) Renderer {
	if opts.Settle == 0 {
		opts.Settle = DefaultSettle
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Minute
	}
	return Renderer{opts: opts}
}

func FileUrl(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}

// viewport reads the scroll dimensions returned by dimensionsScript.
func viewport(value gson.JSON) (int, int, error) {
	if !value.Has("width") || !value.Has("height") {
		return 0, 0, fmt.Errorf("page dimensions missing from %s", value.JSON("", ""))
	}
	width := value.Get("width").Int()
	height := value.Get("height").Int()
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("page has no size (%dx%d)", width, height)
	}
	return min(width, maxDimension), min(height, maxDimension), nil
}

// Render opens the html file in headless chrome, resizes the window to the
// full document and returns a png screenshot.
func (r Renderer) Render(ctx context.Context, htmlPath string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "renderer:Render")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	target, err := FileUrl(htmlPath)
	if err != nil {
		return nil, err
	}

	l := launcher.New().
		Context(ctx).
		Headless(true).
		NoSandbox(true).
		Set("disable-dev-shm-usage").
		Set("hide-scrollbars")
	if r.opts.Bin != "" {
		l = l.Bin(r.opts.Bin)
	}
	controlUrl, err := l.Launch()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to launch browser")
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	defer l.Cleanup()
	defer l.Kill()

	browser := rod.New().ControlURL(controlUrl).Context(ctx)
	err = browser.Connect()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to connect to browser")
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{URL: target})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open page")
		return nil, fmt.Errorf("failed to open %s: %w", target, err)
	}
	err = page.WaitLoad()
	if err != nil {
		return nil, fmt.Errorf("page did not load: %w", err)
	}

	res, err := page.Eval(dimensionsScript)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to measure page")
		return nil, fmt.Errorf("failed to measure page: %w", err)
	}
	width, height, err := viewport(res.Value)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to measure page")
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("width", width),
		attribute.Int("height", height),
	)
	slog.DebugContext(ctx, "resizing page", "width", width, "height", height)

	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resize page: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(r.opts.Settle):
	}

	img, err := page.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to take screenshot")
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return img, nil
}
