package scenario_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/casprobe/internal/cas"
	"github.com/raysh454/casprobe/internal/scenario"
	"github.com/raysh454/casprobe/internal/testutil"
)

const baseURL = "https://localhost:8443/cas"

type memRecorder struct {
	mu      sync.Mutex
	results []*scenario.Result
}

func (m *memRecorder) Record(_ context.Context, res *scenario.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, res)
	return nil
}

func registrationPage() *testutil.DummyPage {
	return &testutil.DummyPage{
		Texts: map[string]string{
			"#login h3": " Register Device ",
			"#login p":  "Please touch the flashing U2F device now.",
		},
		Body: "<html><body><div id=\"login\"></div></body></html>",
	}
}

func newEnv(client *testutil.DummyWebClient, b *testutil.DummyBrowser, launchErr error) *scenario.Env {
	return &scenario.Env{
		BaseURL:  baseURL,
		Username: "casuser",
		Password: "Mellon",
		Client:   client,
		Launch:   testutil.Launcher(b, launchErr),
		Logger:   &testutil.DummyLogger{},
	}
}

func stepNames(res *scenario.Result) []string {
	out := make([]string, 0, len(res.Steps))
	for _, s := range res.Steps {
		out = append(out, s.Name+":"+string(s.Status))
	}
	return out
}

func TestRunner_MFAU2FRegister_Passes(t *testing.T) {
	t.Parallel()
	client := &testutil.DummyWebClient{}
	page := registrationPage()
	b := &testutil.DummyBrowser{Page: page}
	rec := &memRecorder{}

	res, err := scenario.NewRunner(newEnv(client, b, nil), rec).Run(context.Background(), scenario.NewMFAU2FRegister())
	require.NoError(t, err)
	assert.True(t, res.Passed())
	assert.NotEmpty(t, res.RunID)

	assert.Equal(t, []string{
		"refresh:passed",
		"launch:passed",
		"new-page:passed",
		"navigate:passed",
		"authenticate:passed",
		"assert #login h3:passed",
		"assert #login p:passed",
		"cleanup:passed",
	}, stepNames(res))

	require.Len(t, client.Requests, 1)
	assert.Equal(t, "POST", client.Requests[0].Method)
	assert.Equal(t, baseURL+"/actuator/refresh", client.Requests[0].URL)

	assert.Equal(t, []string{
		"Goto " + baseURL + "/login?authn_method=mfa-u2f",
		"Type #username=casuser",
		"Type #password=Mellon",
		"Submit #password",
		"TextContent #login h3",
		"TextContent #login p",
	}, page.CallLog())

	assert.Equal(t, 1, b.Closes())
	require.Len(t, rec.results, 1)
	assert.Same(t, res, rec.results[0])
	assert.Empty(t, res.PageHTML)
}

func TestRunner_AssertionFailure_ClosesBrowserAndSkipsRest(t *testing.T) {
	t.Parallel()
	page := registrationPage()
	page.Texts["#login h3"] = "Log In Successful"
	b := &testutil.DummyBrowser{Page: page}

	res, err := scenario.NewRunner(newEnv(&testutil.DummyWebClient{}, b, nil), nil).Run(context.Background(), scenario.NewMFAU2FRegister())
	require.Error(t, err)
	assert.ErrorIs(t, err, cas.ErrTextMismatch)

	step, ok := scenario.FailedStep(err)
	require.True(t, ok)
	assert.Equal(t, "assert #login h3", step)

	assert.Equal(t, scenario.StatusFailed, res.Status)
	p, ok := res.Step("assert #login p")
	require.True(t, ok)
	assert.Equal(t, scenario.StatusSkipped, p.Status)

	cleanup, ok := res.Step(scenario.CleanupStep)
	require.True(t, ok)
	assert.Equal(t, scenario.StatusPassed, cleanup.Status)
	assert.Equal(t, 1, b.Closes())

	assert.Contains(t, res.PageHTML, `id="login"`)
	assert.Contains(t, res.Error, "Register Device")
	assert.NotContains(t, strings.Join(page.CallLog(), ","), "TextContent #login p")
}

func TestRunner_MissingSelector(t *testing.T) {
	t.Parallel()
	page := registrationPage()
	delete(page.Texts, "#login p")
	b := &testutil.DummyBrowser{Page: page}

	_, err := scenario.NewRunner(newEnv(&testutil.DummyWebClient{}, b, nil), nil).Run(context.Background(), scenario.NewMFAU2FRegister())
	assert.ErrorIs(t, err, cas.ErrSelectorNotFound)
	assert.Equal(t, 1, b.Closes())
}

func TestRunner_RefreshFailure_NeverLaunches(t *testing.T) {
	t.Parallel()
	client := &testutil.DummyWebClient{Status: map[string]int{baseURL + "/actuator/refresh": 503}}
	b := &testutil.DummyBrowser{Page: registrationPage()}

	res, err := scenario.NewRunner(newEnv(client, b, nil), nil).Run(context.Background(), scenario.NewMFAU2FRegister())
	require.Error(t, err)
	assert.ErrorIs(t, err, cas.ErrRequestFailed)

	var se *cas.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 503, se.StatusCode)

	step, _ := scenario.FailedStep(err)
	assert.Equal(t, "refresh", step)
	assert.Equal(t, 0, b.Closes())
	_, hasCleanup := res.Step(scenario.CleanupStep)
	assert.False(t, hasCleanup)
	launch, _ := res.Step("launch")
	assert.Equal(t, scenario.StatusSkipped, launch.Status)
}

func TestRunner_LaunchFailure(t *testing.T) {
	t.Parallel()
	b := &testutil.DummyBrowser{}

	_, err := scenario.NewRunner(newEnv(&testutil.DummyWebClient{}, b, errors.New("chrome not found")), nil).Run(context.Background(), scenario.NewMFAU2FRegister())
	assert.ErrorIs(t, err, cas.ErrLaunchFailed)
	step, _ := scenario.FailedStep(err)
	assert.Equal(t, "launch", step)
	assert.Equal(t, 0, b.Closes())
}

func TestRunner_LoginFailure_ClosesBrowser(t *testing.T) {
	t.Parallel()
	page := registrationPage()
	page.Errs = map[string]error{"Submit": context.DeadlineExceeded}
	b := &testutil.DummyBrowser{Page: page}

	_, err := scenario.NewRunner(newEnv(&testutil.DummyWebClient{}, b, nil), nil).Run(context.Background(), scenario.NewMFAU2FRegister())
	assert.ErrorIs(t, err, cas.ErrLoginFailed)
	assert.Equal(t, 1, b.Closes())
}

func TestRunner_CloseFailureFailsOtherwiseGreenRun(t *testing.T) {
	t.Parallel()
	b := &testutil.DummyBrowser{Page: registrationPage(), CloseErr: errors.New("process already gone")}

	res, err := scenario.NewRunner(newEnv(&testutil.DummyWebClient{}, b, nil), nil).Run(context.Background(), scenario.NewMFAU2FRegister())
	require.Error(t, err)
	step, _ := scenario.FailedStep(err)
	assert.Equal(t, scenario.CleanupStep, step)
	assert.Equal(t, scenario.StatusFailed, res.Status)
	assert.Equal(t, 1, b.Closes())
}

func TestRunner_StepTimeout(t *testing.T) {
	t.Parallel()
	env := newEnv(&testutil.DummyWebClient{}, &testutil.DummyBrowser{}, nil)
	env.StepTimeout = 20 * time.Millisecond

	sc := &scenario.Scenario{Name: "slow", Steps: []scenario.Step{{
		Name: "wait",
		Run: func(ctx context.Context, _ *scenario.State) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}}}

	_, err := scenario.NewRunner(env, nil).Run(context.Background(), sc)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunner_PageStepsWithoutPage(t *testing.T) {
	t.Parallel()
	env := newEnv(&testutil.DummyWebClient{}, &testutil.DummyBrowser{}, nil)
	sc := &scenario.Scenario{Name: "broken", Steps: []scenario.Step{scenario.Login()}}

	_, err := scenario.NewRunner(env, nil).Run(context.Background(), sc)
	assert.ErrorIs(t, err, scenario.ErrNoPage)
}

func TestDescribe(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ok := &scenario.Result{RunID: "r1", Scenario: "s", Status: scenario.StatusPassed, StartedAt: start, EndedAt: start.Add(1500 * time.Millisecond)}
	assert.Equal(t, "s r1 passed in 1.5s", scenario.Describe(ok))

	bad := &scenario.Result{RunID: "r2", Scenario: "s", Status: scenario.StatusFailed, Error: "step refresh: boom"}
	assert.Equal(t, "s r2 failed: step refresh: boom", scenario.Describe(bad))
}
