package cas_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/casprobe/internal/cas"
	"github.com/raysh454/casprobe/internal/testutil"
	"github.com/raysh454/casprobe/internal/webclient"
)

func TestAssertTextContent_ExactMatchAfterTrim(t *testing.T) {
	t.Parallel()
	page := &testutil.DummyPage{Texts: map[string]string{
		"#login h3": "\n    Register Device\n  ",
	}}

	require.NoError(t, cas.AssertTextContent(context.Background(), page, "#login h3", "Register Device"))
}

func TestAssertTextContent_Mismatch(t *testing.T) {
	t.Parallel()
	page := &testutil.DummyPage{Texts: map[string]string{
		"#login h3": "register device",
	}}

	err := cas.AssertTextContent(context.Background(), page, "#login h3", "Register Device")
	require.Error(t, err)
	assert.ErrorIs(t, err, cas.ErrTextMismatch)
	assert.NotErrorIs(t, err, cas.ErrSelectorNotFound)

	var ae *cas.AssertionError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "#login h3", ae.Selector)
	assert.Equal(t, "Register Device", ae.Expected)
	assert.Equal(t, "register device", ae.Actual)
	assert.Contains(t, err.Error(), `"#login h3"`)
	assert.Contains(t, err.Error(), `expected text "Register Device"`)
	assert.Contains(t, err.Error(), `got "register device"`)
}

func TestAssertTextContent_InnerWhitespaceMatters(t *testing.T) {
	t.Parallel()
	page := &testutil.DummyPage{Texts: map[string]string{
		"#login p": "Please touch the flashing  U2F device now.",
	}}

	err := cas.AssertTextContent(context.Background(), page, "#login p", "Please touch the flashing U2F device now.")
	assert.ErrorIs(t, err, cas.ErrTextMismatch)
}

func TestAssertTextContent_MissingSelector(t *testing.T) {
	t.Parallel()
	page := &testutil.DummyPage{Texts: map[string]string{}}

	err := cas.AssertTextContent(context.Background(), page, "#login p", "Please touch the flashing U2F device now.")
	require.Error(t, err)
	assert.ErrorIs(t, err, cas.ErrSelectorNotFound)
	assert.Contains(t, err.Error(), `"#login p"`)
}

func TestAssertTextContent_OtherErrorsPassThrough(t *testing.T) {
	t.Parallel()
	boom := errors.New("target crashed")
	page := &testutil.DummyPage{Errs: map[string]error{"TextContent": boom}}

	err := cas.AssertTextContent(context.Background(), page, "#login p", "x")
	assert.ErrorIs(t, err, boom)
	var ae *cas.AssertionError
	assert.False(t, errors.As(err, &ae))
}

func TestAssertionError_Diff(t *testing.T) {
	t.Parallel()
	ae := &cas.AssertionError{Expected: "Register Device", Actual: "Register Token", Kind: cas.ErrTextMismatch}
	diff := ae.Diff()
	assert.True(t, strings.HasPrefix(diff, "Register "), diff)
	assert.Contains(t, diff, "[-")
	assert.Contains(t, diff, "{+")

	same := &cas.AssertionError{Expected: "Register Device", Actual: "Register Device"}
	assert.Equal(t, "Register Device", same.Diff())
}

func TestLoginWith_FillsAndSubmitsDefaultForm(t *testing.T) {
	t.Parallel()
	page := &testutil.DummyPage{}

	require.NoError(t, cas.LoginWith(context.Background(), page, "casuser", "Mellon"))
	assert.Equal(t, []string{
		"Type #username=casuser",
		"Type #password=Mellon",
		"Submit #password",
	}, page.CallLog())
}

func TestLoginWith_WrapsFailures(t *testing.T) {
	t.Parallel()
	page := &testutil.DummyPage{Errs: map[string]error{"Submit": context.DeadlineExceeded}}

	err := cas.LoginWith(context.Background(), page, "casuser", "Mellon")
	assert.ErrorIs(t, err, cas.ErrLoginFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGoto_WrapsFailures(t *testing.T) {
	t.Parallel()
	page := &testutil.DummyPage{Errs: map[string]error{"Goto": errors.New("net::ERR_CONNECTION_REFUSED")}}

	err := cas.Goto(context.Background(), page, "https://localhost:8443/cas/login")
	assert.ErrorIs(t, err, cas.ErrNavigationFailed)
}

func TestLoginURL(t *testing.T) {
	t.Parallel()
	got, err := cas.LoginURL("https://localhost:8443/cas/", "mfa-u2f")
	require.NoError(t, err)
	assert.Equal(t, "https://localhost:8443/cas/login?authn_method=mfa-u2f", got)

	got, err = cas.LoginURL("https://localhost:8443/cas", "")
	require.NoError(t, err)
	assert.Equal(t, "https://localhost:8443/cas/login", got)
}

func TestActuatorURL(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "https://localhost:8443/cas/actuator/refresh", cas.ActuatorURL("https://localhost:8443/cas/", "/refresh"))
}

func TestDoRequest_SuccessAndStatusFailure(t *testing.T) {
	t.Parallel()
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if r.URL.Path == "/cas/actuator/refresh" {
			_, _ = w.Write([]byte(`["cas.authn.mfa.u2f.core.trusted-device-enabled"]`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("no such endpoint"))
	}))
	defer ts.Close()

	client, err := webclient.NewNetHTTPClient(webclient.DefaultConfig(), nil, nil)
	require.NoError(t, err)
	defer client.Close()

	resp, err := cas.DoRequest(context.Background(), client, ts.URL+"/cas/actuator/refresh", "post")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = cas.DoRequest(context.Background(), client, ts.URL+"/cas/actuator/missing", "POST")
	require.Error(t, err)
	assert.ErrorIs(t, err, cas.ErrRequestFailed)
	var se *cas.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Equal(t, "no such endpoint", se.Body)
	assert.NotNil(t, resp)
}

func TestStatusError_TruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()
	body := strings.Repeat("a", 199) + strings.Repeat("é", 10)
	e := &cas.StatusError{Method: "POST", URL: "https://localhost:8443/cas/actuator/refresh", StatusCode: 500, Body: body}

	msg := e.Error()
	assert.True(t, utf8.ValidString(msg))
	assert.True(t, strings.HasSuffix(msg, strings.Repeat("a", 199)+"..."))
}

func TestDoRequest_TransportFailure(t *testing.T) {
	t.Parallel()
	client := &testutil.DummyWebClient{FailURLs: map[string]bool{"https://localhost:8443/cas/actuator/refresh": true}}

	_, err := cas.DoRequest(context.Background(), client, "https://localhost:8443/cas/actuator/refresh", "POST")
	assert.ErrorIs(t, err, cas.ErrRequestFailed)
}

func TestNewPage_WrapsFailure(t *testing.T) {
	t.Parallel()
	b := &testutil.DummyBrowser{NewPageErr: errors.New("no targets")}

	_, err := cas.NewPage(context.Background(), b)
	assert.ErrorIs(t, err, cas.ErrLaunchFailed)
}

func TestBrowserOptions_IgnoreCertErrorsHeadless(t *testing.T) {
	t.Parallel()
	opts := cas.BrowserOptions()
	assert.True(t, opts.Headless)
	assert.True(t, opts.IgnoreCertErrors)
	assert.Equal(t, 1920, opts.WindowWidth)
	assert.Equal(t, 1080, opts.WindowHeight)
}
