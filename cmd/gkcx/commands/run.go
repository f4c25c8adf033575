package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/sankforever/gkcx/lib/history"
	"github.com/sankforever/gkcx/lib/lzstring"
	"github.com/sankforever/gkcx/lib/mail"
	"github.com/sankforever/gkcx/lib/render"
	"github.com/sankforever/gkcx/lib/restyutil"
	"github.com/sankforever/gkcx/lib/scrapers/gkcf"
	"github.com/sankforever/gkcx/lib/serviceutil"
	"github.com/sankforever/gkcx/lib/timezone"
	"github.com/sankforever/gkcx/services/poller"

	"github.com/spf13/cobra"
)

const (
	htmlArtifact    = "gkcx.html"
	imageArtifact   = "gkcx.png"
	lockArtifact    = "gkcx.lock"
	historyArtifact = "history.db"
)

const (
	exitOk    = 0
	exitFatal = 1
	// exitExhausted is returned when no captcha was accepted in time.
	exitExhausted = 2
)

var errAlreadyRunning = errors.New("another run holds the lock")

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run [--config <config.json5>]",
	Short: "Polls the portal once and mails the result page if it has been published.",
	Run: func(cmd *cobra.Command, args []string) {
		config, err := loadConfig(configPath)
		if err != nil {
			serviceutil.Fatal("failed to load config", err)
		}
		err = config.validate()
		if err != nil {
			serviceutil.Fatal("invalid config", err)
		}

		result, err := poll(cmd.Context(), config)
		code := exitCode(result, err)
		if code == exitOk {
			return
		}
		shutdownTelemetry()
		if code == exitFatal && err != nil {
			serviceutil.Fatal("run aborted", err)
		}
		serviceutil.Exit(code, "giving up, try again later", "attempts", result.Attempts)
	},
}

// exitCode maps a run to the process exit status: a pending or found result
// is 0, running out of attempts is 2, anything aborted (including a held
// lock) is 1.
func exitCode(result poller.Result, err error) int {
	if err != nil {
		return exitFatal
	}
	switch result.Final.Kind {
	case poller.StateDonePending, poller.StateDoneSuccess:
		return exitOk
	case poller.StateExhausted:
		return exitExhausted
	default:
		return exitFatal
	}
}

func shutdownTelemetry() {
	err := otel.Shutdown(context.Background())
	if err != nil {
		slog.Warn("failed to flush telemetry", "err", err)
	}
}

func newMachine(config Config, notifier poller.Notifier) (*poller.Machine, error) {
	var dump restyutil.Output
	if config.DumpHttp {
		out, err := restyutil.NewFilesystemOutput(config.artifact("http"))
		if err != nil {
			return nil, err
		}
		dump = out
	}

	client, err := gkcf.NewClient(gkcf.ClientOptions{
		BaseUrl:          config.Site.BaseUrl,
		Timeout:          config.SiteTimeout(),
		CloudflareBypass: config.Site.CloudflareBypass,
		RecordBodies:     config.RecordBodies,
		Dump:             dump,
	})
	if err != nil {
		return nil, err
	}

	provider, err := newOcrProvider(config)
	if err != nil {
		return nil, err
	}

	return poller.NewMachine(poller.Options{
		Policy: config.Policy(),
		Sessions: func() (poller.Session, error) {
			session, err := client.NewSession()
			if err != nil {
				return nil, err
			}
			return session, nil
		},
		Recognizer: poller.NewSolver(provider),
		Fields:     poller.NewFieldEncoder(lzstring.Base64{}, config.Site.Key1, config.Site.Key2),
		Classifier: poller.NewClassifier(config.Site.Markers),
		Notifier:   notifier,
		Now:        timezone.Now,
	})
}

func newPipeline(config Config) (poller.Pipeline, error) {
	mailer, err := mail.NewMailer(config.MailOptions())
	if err != nil {
		return poller.Pipeline{}, err
	}
	return poller.NewPipeline(poller.PipelineOptions{
		HtmlPath:  config.artifact(htmlArtifact),
		ImagePath: config.artifact(imageArtifact),
		Subject:   config.Email.Subject,
		Renderer:  render.NewRenderer(render.Options{Bin: config.Chrome}),
		Mailer:    mailer,
	})
}

func historyRun(result poller.Result, runErr error) history.Run {
	run := history.Run{
		StartedAt:   result.StartedAt,
		FinishedAt:  result.FinishedAt,
		Final:       result.Final.Kind.String(),
		Attempts:    result.Attempts,
		Submissions: result.Submissions,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if result.NotifyErr != nil {
		run.NotifyError = result.NotifyErr.Error()
	}
	for _, state := range result.Transitions {
		run.Steps = append(run.Steps, history.Step{
			State:   state.Kind.String(),
			Attempt: state.Attempt,
		})
	}
	return run
}

func poll(ctx context.Context, config Config) (poller.Result, error) {
	err := os.MkdirAll(config.ArtifactDir, 0755)
	if err != nil {
		return poller.Result{}, err
	}

	unlock, ok, err := serviceutil.Lock(config.artifact(lockArtifact))
	if err != nil {
		return poller.Result{}, fmt.Errorf("failed to take lock: %w", err)
	}
	if !ok {
		return poller.Result{}, errAlreadyRunning
	}
	defer unlock()

	pipeline, err := newPipeline(config)
	if err != nil {
		return poller.Result{}, err
	}
	machine, err := newMachine(config, pipeline)
	if err != nil {
		return poller.Result{}, err
	}

	database, err := history.Open(config.artifact(historyArtifact))
	if err != nil {
		return poller.Result{}, fmt.Errorf("failed to open history: %w", err)
	}
	defer database.Close()

	result, runErr := machine.Run(ctx)

	id, err := history.NewStore(database).Record(context.WithoutCancel(ctx), historyRun(result, runErr))
	if err != nil {
		slog.Warn("failed to record run history", "err", err)
	} else {
		slog.Debug("recorded run", "id", id)
	}

	slog.Info(
		"run finished",
		"final", result.Final.Kind.String(),
		"attempts", result.Attempts,
		"submissions", result.Submissions,
		"duration", result.FinishedAt.Sub(result.StartedAt),
	)
	return result, runErr
}
