package commands

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sankforever/gkcx/lib/history"
	"github.com/sankforever/gkcx/lib/mail"
	"github.com/sankforever/gkcx/lib/serviceutil"
	"github.com/sankforever/gkcx/services/poller"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const baseConfig = `{
	// committed defaults
	site: {
		key1: "360000000000",
		key2: "placeholder",
		timeout_seconds: 20,
	},
	poll: {
		max_attempts: 5,
		backoff_seconds: 1.5,
	},
	ocr: {
		baidu: { api_key: "committed", secret_key: "committed" },
	},
	email: {
		host: "smtp.qq.com",
		username: "me@qq.com",
		to: ["me@qq.com"],
	},
	artifact_dir: "out",
}`

const localConfig = `{
	site: { key2: "20060101" },
	poll: { retry_transport: true },
}`

func writeConfig(t *testing.T) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	require.NoError(t, os.WriteFile(path, []byte(baseConfig), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.local.json5"), []byte(localConfig), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	config, err := loadConfig(writeConfig(t))
	require.NoError(t, err)
	require.NoError(t, config.validate())

	require.Equal(t, "360000000000", config.Site.Key1)
	require.Equal(t, "20060101", config.Site.Key2)
	require.Equal(t, 20*time.Second, config.SiteTimeout())
	require.Equal(t, "baidu", config.Ocr.Provider)
	require.Equal(t, filepath.Join("out", "gkcx.png"), config.artifact(imageArtifact))

	require.Equal(t, poller.Policy{
		MaxAttempts:    5,
		Backoff:        1500 * time.Millisecond,
		RetryTransport: true,
	}, config.Policy())

	require.Equal(t, mail.Options{
		Host:     "smtp.qq.com",
		Port:     465,
		Username: "me@qq.com",
		To:       []string{"me@qq.com"},
		Security: mail.SecuritySSL,
	}, config.MailOptions())
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("GKCX_KEY1", "361111111111")
	t.Setenv("GKCX_BAIDU_SECRET_KEY", "from-env")
	t.Setenv("GKCX_EMAIL_PASSWORD", "app-password")
	t.Setenv("GKCX_EMAIL_TO", "a@example.com, b@example.com,")

	config, err := loadConfig(writeConfig(t))
	require.NoError(t, err)
	require.Equal(t, "361111111111", config.Site.Key1)
	require.Equal(t, "committed", config.Ocr.Baidu.ApiKey)
	require.Equal(t, "from-env", config.Ocr.Baidu.SecretKey)
	require.Equal(t, "app-password", config.Email.Password)
	require.Equal(t, []string{"a@example.com", "b@example.com"}, config.Email.To)
}

func TestLoadConfigMissingFile(t *testing.T) {
	config, err := loadConfig(filepath.Join(t.TempDir(), "config.json5"))
	require.NoError(t, err)
	require.Equal(t, poller.DefaultPolicy(), config.Policy())
	require.Equal(t, ".", config.ArtifactDir)
	require.Equal(t, 0*time.Second, config.SiteTimeout())
	require.Error(t, config.validate())
}

func TestValidateOcr(t *testing.T) {
	config := Config{Ocr: OcrConfig{Provider: "openai"}}
	require.Error(t, config.validateOcr())
	config.Ocr.Openai.ApiKey = "sk-test"
	require.NoError(t, config.validateOcr())

	config.Ocr.Provider = "tesseract"
	require.Error(t, config.validateOcr())
}

func TestEmailPortDefaults(t *testing.T) {
	cases := map[string]int{"ssl": 465, "starttls": 587, "plain": 25}
	for security, port := range cases {
		config := Config{Email: EmailConfig{Security: security}}
		config.applyDefaults()
		require.Equal(t, port, config.Email.Port, security)
	}
}

func TestHistoryRun(t *testing.T) {
	start := time.Date(2024, time.July, 20, 9, 0, 0, 0, time.UTC)
	result := poller.Result{
		Final:       poller.State{Kind: poller.StateDoneSuccess, Attempt: 1},
		Attempts:    2,
		Submissions: 2,
		StartedAt:   start,
		FinishedAt:  start.Add(4 * time.Second),
		Transitions: []poller.State{
			{Kind: poller.StateAttempting, Attempt: 0},
			{Kind: poller.StateFailed, Attempt: 0},
			{Kind: poller.StateAttempting, Attempt: 1},
			{Kind: poller.StateDoneSuccess, Attempt: 1},
		},
		NotifyErr: &poller.NotificationError{Stage: "mail", Err: errors.New("timeout")},
	}

	expected := history.Run{
		StartedAt:   start,
		FinishedAt:  start.Add(4 * time.Second),
		Final:       "done_success",
		Attempts:    2,
		Submissions: 2,
		NotifyError: "notification mail: timeout",
		Steps: []history.Step{
			{State: "attempting", Attempt: 0},
			{State: "failed", Attempt: 0},
			{State: "attempting", Attempt: 1},
			{State: "done_success", Attempt: 1},
		},
	}
	if diff := cmp.Diff(expected, historyRun(result, nil)); diff != "" {
		t.Fatalf("history run (-want +got):\n%s", diff)
	}

	aborted := historyRun(poller.Result{Final: poller.State{Kind: poller.StateAborted}}, errors.New("connection refused"))
	require.Equal(t, "aborted", aborted.Final)
	require.Equal(t, "connection refused", aborted.Error)
}

func TestRenderHistory(t *testing.T) {
	start := time.Date(2024, time.July, 20, 9, 0, 0, 0, time.UTC)
	out := renderHistory([]history.Run{{
		ID:          3,
		StartedAt:   start,
		FinishedAt:  start.Add(3 * time.Second),
		Final:       "exhausted",
		Attempts:    10,
		Submissions: 4,
		Steps:       []history.Step{{State: "attempting", Attempt: 0}, {State: "exhausted", Attempt: 9}},
	}}, true)

	require.Contains(t, out, "2024-07-20 09:00:00")
	require.Contains(t, out, "exhausted")
	require.Contains(t, out, "attempting(0) > exhausted(9)")
	require.Contains(t, out, "3s")
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		name     string
		final    poller.StateKind
		err      error
		expected int
	}{
		{name: "pending", final: poller.StateDonePending, expected: 0},
		{name: "success", final: poller.StateDoneSuccess, expected: 0},
		{name: "exhausted", final: poller.StateExhausted, expected: 2},
		{name: "aborted", final: poller.StateAborted, err: errors.New("connection refused"), expected: 1},
		{name: "lock held", err: errAlreadyRunning, expected: 1},
		{name: "aborted without error", final: poller.StateAborted, expected: 1},
	}
	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			result := poller.Result{Final: poller.State{Kind: test.final}}
			require.Equal(t, test.expected, exitCode(result, test.err))
		})
	}
}

func TestPollRefusesWhileLocked(t *testing.T) {
	config := Config{ArtifactDir: t.TempDir()}

	unlock, ok, err := serviceutil.Lock(config.artifact(lockArtifact))
	require.NoError(t, err)
	require.True(t, ok)
	defer unlock()

	_, err = poll(context.Background(), config)
	require.ErrorIs(t, err, errAlreadyRunning)
	require.Equal(t, exitFatal, exitCode(poller.Result{}, err))
}
