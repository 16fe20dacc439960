package scenario_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/casprobe/internal/browser"
	"github.com/raysh454/casprobe/internal/cas"
	"github.com/raysh454/casprobe/internal/scenario"
	"github.com/raysh454/casprobe/internal/testutil"
)

func devicePage(devices int) *testutil.DummyPage {
	return &testutil.DummyPage{
		Texts:   map[string]string{"#content h2": "Log In Successful"},
		Body:    "<html><body><div id=\"content\"></div></body></html>",
		Devices: devices,
	}
}

func TestRunner_MFAU2FRegister_RejectsVirtualAuthenticator(t *testing.T) {
	t.Parallel()
	client := &testutil.DummyWebClient{}
	b := &testutil.DummyBrowser{Page: registrationPage()}
	rec := &memRecorder{}
	env := newEnv(client, b, nil)
	env.BrowserOptions.VirtualAuthenticator = true

	res, err := scenario.NewRunner(env, rec).Run(context.Background(), scenario.NewMFAU2FRegister())
	require.Error(t, err)
	assert.ErrorIs(t, err, scenario.ErrAuthenticatorConflict)
	_, isStep := scenario.FailedStep(err)
	assert.False(t, isStep)

	assert.Empty(t, client.Requests)
	assert.Empty(t, b.LaunchOptions())
	assert.Equal(t, 0, b.Closes())

	assert.Equal(t, scenario.StatusFailed, res.Status)
	require.Len(t, res.Steps, 7)
	for _, s := range res.Steps {
		assert.Equal(t, scenario.StatusSkipped, s.Status, s.Name)
	}
	require.Len(t, rec.results, 1)
	assert.Contains(t, rec.results[0].Error, scenario.MFAU2FRegister)
}

func TestRunner_MFAU2FRegister_LaunchesWithoutAuthenticator(t *testing.T) {
	t.Parallel()
	b := &testutil.DummyBrowser{Page: registrationPage()}

	_, err := scenario.NewRunner(newEnv(&testutil.DummyWebClient{}, b, nil), nil).Run(context.Background(), scenario.NewMFAU2FRegister())
	require.NoError(t, err)
	opts := b.LaunchOptions()
	require.Len(t, opts, 1)
	assert.False(t, opts[0].VirtualAuthenticator)
}

func TestRunner_MFAU2FRegisterDevice_Passes(t *testing.T) {
	t.Parallel()
	client := &testutil.DummyWebClient{}
	page := devicePage(1)
	b := &testutil.DummyBrowser{Page: page}
	env := newEnv(client, b, nil)
	env.BrowserOptions = browser.Config{Headless: true}

	res, err := scenario.NewRunner(env, nil).Run(context.Background(), scenario.NewMFAU2FRegisterDevice())
	require.NoError(t, err)
	assert.True(t, res.Passed())

	assert.Equal(t, []string{
		"refresh:passed",
		"forget-devices:passed",
		"launch:passed",
		"new-page:passed",
		"navigate:passed",
		"authenticate:passed",
		"assert #content h2:passed",
		"assert 1 credential(s):passed",
		"remove-device:passed",
		"cleanup:passed",
	}, stepNames(res))

	opts := b.LaunchOptions()
	require.Len(t, opts, 1)
	assert.True(t, opts[0].VirtualAuthenticator)
	assert.True(t, opts[0].Headless)

	require.Len(t, client.Requests, 3)
	assert.Equal(t, "POST", client.Requests[0].Method)
	for _, i := range []int{1, 2} {
		assert.Equal(t, "DELETE", client.Requests[i].Method)
		assert.Equal(t, baseURL+"/actuator/u2fDevices/casuser", client.Requests[i].URL)
	}
	assert.Contains(t, page.CallLog(), "Credentials")
	assert.Equal(t, 1, b.Closes())
}

func TestRunner_MFAU2FRegisterDevice_NoCredentialStored(t *testing.T) {
	t.Parallel()
	client := &testutil.DummyWebClient{}
	b := &testutil.DummyBrowser{Page: devicePage(0)}

	res, err := scenario.NewRunner(newEnv(client, b, nil), nil).Run(context.Background(), scenario.NewMFAU2FRegisterDevice())
	require.Error(t, err)
	assert.ErrorIs(t, err, cas.ErrCredentialCount)

	step, ok := scenario.FailedStep(err)
	require.True(t, ok)
	assert.Equal(t, "assert 1 credential(s)", step)

	remove, ok := res.Step("remove-device")
	require.True(t, ok)
	assert.Equal(t, scenario.StatusSkipped, remove.Status)
	assert.Len(t, client.Requests, 2)
	assert.Equal(t, 1, b.Closes())
}

func TestRunner_MFAU2FRegisterDevice_ForgetFailureNeverLaunches(t *testing.T) {
	t.Parallel()
	client := &testutil.DummyWebClient{Status: map[string]int{baseURL + "/actuator/u2fDevices/casuser": 404}}
	b := &testutil.DummyBrowser{Page: devicePage(1)}

	_, err := scenario.NewRunner(newEnv(client, b, nil), nil).Run(context.Background(), scenario.NewMFAU2FRegisterDevice())
	assert.ErrorIs(t, err, cas.ErrRequestFailed)
	step, _ := scenario.FailedStep(err)
	assert.Equal(t, "forget-devices", step)
	assert.Empty(t, b.LaunchOptions())
}

func TestAssertCredentials_ListError(t *testing.T) {
	t.Parallel()
	page := devicePage(1)
	page.Errs = map[string]error{"Credentials": errors.New("target closed")}
	sc := &scenario.Scenario{Name: "creds", Steps: []scenario.Step{
		scenario.LaunchBrowser(),
		scenario.OpenPage(),
		scenario.AssertCredentials(1),
	}}

	_, err := scenario.NewRunner(newEnv(&testutil.DummyWebClient{}, &testutil.DummyBrowser{Page: page}, nil), nil).Run(context.Background(), sc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target closed")
	assert.NotErrorIs(t, err, cas.ErrCredentialCount)
}
