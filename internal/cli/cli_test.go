package cli_test

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/casprobe/internal/app"
	"github.com/raysh454/casprobe/internal/casserver"
	"github.com/raysh454/casprobe/internal/cli"
	"github.com/raysh454/casprobe/internal/testutil"
)

func casServer(t *testing.T) string {
	t.Helper()
	s, err := casserver.NewServer(casserver.DefaultConfig(), &testutil.DummyLogger{})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	ts := httptest.NewTLSServer(s)
	t.Cleanup(ts.Close)
	return ts.URL + "/cas"
}

func execute(t *testing.T, texts map[string]string, args ...string) (string, error) {
	t.Helper()
	return executeWith(t, &testutil.DummyPage{Texts: texts}, args...)
}

func executeWith(t *testing.T, page *testutil.DummyPage, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	b := &testutil.DummyBrowser{Page: page}
	cmd := cli.NewRootCmd(&out, &errOut, app.WithLauncher(testutil.Launcher(b, nil)))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

var registerTexts = map[string]string{
	"#login h3": "Register Device",
	"#login p":  "Please touch the flashing U2F device now.",
}

func TestRun_PassesAndRecords(t *testing.T) {
	t.Parallel()
	base := casServer(t)
	store := filepath.Join(t.TempDir(), "runs.db")

	out, err := execute(t, registerTexts, "run", "--base-url", base, "--store", store, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "mfa-u2f-register")
	assert.Contains(t, out, "passed")
	assert.Contains(t, out, "assert #login p")

	out, err = execute(t, nil, "history", "--store", store, "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "RUN")
	assert.Contains(t, out, "mfa-u2f-register")
	assert.Contains(t, out, "passed")
}

func TestRun_FailureReturnsError(t *testing.T) {
	t.Parallel()
	base := casServer(t)

	out, err := execute(t, map[string]string{"#login h3": "Enter Username & Password"},
		"run", "mfa-u2f-register", "--base-url", base, "--log-level", "error")
	require.Error(t, err)
	assert.True(t, errors.Is(err, cli.ErrScenarioFailed))
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "skipped")
}

func TestRun_UnknownScenario(t *testing.T) {
	t.Parallel()

	_, err := execute(t, nil, "run", "does-not-exist", "--log-level", "error")
	require.Error(t, err)
	assert.False(t, errors.Is(err, cli.ErrScenarioFailed))
}

func TestRun_InvalidBaseURL(t *testing.T) {
	t.Parallel()

	_, err := execute(t, nil, "run", "--base-url", "not a url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestList(t *testing.T) {
	t.Parallel()

	out, err := execute(t, nil, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "mfa-u2f-register")
	assert.Contains(t, out, "7 steps")
	assert.Contains(t, out, "mfa-u2f-register-device")
	assert.Contains(t, out, "9 steps")
}

func TestHistory_WithoutStore(t *testing.T) {
	t.Parallel()

	_, err := execute(t, nil, "history")
	assert.ErrorIs(t, err, app.ErrNoHistory)
}

func TestHistory_PrintsFailureArtifact(t *testing.T) {
	t.Parallel()
	base := casServer(t)
	store := filepath.Join(t.TempDir(), "runs.db")

	page := &testutil.DummyPage{
		Texts: map[string]string{"#login h3": "Enter Username & Password"},
		Body:  `<div id="login"><h3>Enter Username &amp; Password</h3></div>`,
	}
	out, err := executeWith(t, page, "run", "--base-url", base, "--store", store, "--log-level", "error")
	require.Error(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	summary := strings.Fields(lines[len(lines)-1])
	require.GreaterOrEqual(t, len(summary), 3)
	runID := summary[1]

	out, err = execute(t, nil, "history", "--store", store, "--artifact", runID)
	require.NoError(t, err)
	assert.Contains(t, out, `<div id="login">`)

	_, err = execute(t, nil, "history", "--store", store, "--artifact", "no-such-run")
	assert.Error(t, err)
}

func TestRun_VirtualAuthenticatorRefusedForRegistrationPrompt(t *testing.T) {
	t.Parallel()
	base := casServer(t)
	store := filepath.Join(t.TempDir(), "runs.db")

	out, err := execute(t, registerTexts,
		"run", "mfa-u2f-register", "--virtual-authenticator", "--base-url", base, "--store", store, "--log-level", "error")
	require.Error(t, err)
	assert.ErrorIs(t, err, cli.ErrScenarioFailed)
	assert.Contains(t, err.Error(), "virtual authenticator not allowed")
	assert.NotContains(t, out, "passed")

	out, err = execute(t, nil, "history", "--store", store)
	require.NoError(t, err)
	assert.Contains(t, out, "failed")
}

func TestRun_DeviceRegistrationScenario(t *testing.T) {
	t.Parallel()
	base := casServer(t)
	page := &testutil.DummyPage{
		Texts:   map[string]string{"#content h2": "Log In Successful"},
		Devices: 1,
	}

	out, err := executeWith(t, page, "run", "mfa-u2f-register-device", "--base-url", base, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "forget-devices")
	assert.Contains(t, out, "remove-device")
	assert.Contains(t, out, "mfa-u2f-register-device")
	assert.Contains(t, page.CallLog(), "Credentials")
}
