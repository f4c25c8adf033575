package poller

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sankforever/gkcx/lib/htmlutil"
	"github.com/sankforever/gkcx/lib/mail"
)

// NotificationError wraps a failure of one stage of the notification
// pipeline. It never changes the outcome of a run.
type NotificationError struct {
	Stage string
	Err   error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notification %s: %s", e.Stage, e.Err.Error())
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

// Renderer turns an html file into an image of the whole document.
type Renderer interface {
	Render(ctx context.Context, htmlPath string) ([]byte, error)
}

type Mailer interface {
	Send(ctx context.Context, msg mail.Message) error
}

type PipelineOptions struct {
	HtmlPath  string
	ImagePath string
	Subject   string
	Renderer  Renderer
	Mailer    Mailer
}

// Pipeline saves the result page, renders it and mails the rendering.
type Pipeline struct {
	opts PipelineOptions
}

var _ Notifier = Pipeline{}

func NewPipeline(opts PipelineOptions) (Pipeline, error) {
	if opts.Renderer == nil || opts.Mailer == nil {
		return Pipeline{}, fmt.Errorf("poller: renderer and mailer are required")
	}
	if opts.HtmlPath == "" || opts.ImagePath == "" {
		return Pipeline{}, fmt.Errorf("poller: html and image paths are required")
	}
	if opts.Subject == "" {
		opts.Subject = "GKCX"
	}
	return Pipeline{opts: opts}, nil
}

func writeArtifact(path string, contents []byte) error {
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return err
	}
	return os.WriteFile(path, contents, 0644)
}

func (p Pipeline) Notify(ctx context.Context, document string) error {
	ctx, span := tracer.Start(ctx, "pipeline:Notify")
	defer span.End()

	htmlPath, err := filepath.Abs(p.opts.HtmlPath)
	if err != nil {
		return &NotificationError{Stage: "save", Err: err}
	}
	err = writeArtifact(htmlPath, []byte(document))
	if err != nil {
		return &NotificationError{Stage: "save", Err: err}
	}

	image, err := p.opts.Renderer.Render(ctx, htmlPath)
	if err != nil {
		return &NotificationError{Stage: "render", Err: err}
	}
	err = writeArtifact(p.opts.ImagePath, image)
	if err != nil {
		return &NotificationError{Stage: "save", Err: err}
	}
	slog.InfoContext(ctx, "result page rendered", "image", p.opts.ImagePath, "bytes", len(image))

	text, err := htmlutil.PageText(document)
	if err != nil {
		slog.WarnContext(ctx, "failed to extract result text", "err", err)
	}

	err = p.opts.Mailer.Send(ctx, mail.Message{
		Subject:   p.opts.Subject,
		Title:     htmlutil.Title(document),
		Text:      text,
		Image:     image,
		ImageName: filepath.Base(p.opts.ImagePath),
	})
	if err != nil {
		return &NotificationError{Stage: "mail", Err: err}
	}
	return nil
}
