package casserver

import (
	"html/template"
	"net/http"
)

const (
	registerHeading    = "Register Device"
	registerPrompt     = "Please touch the flashing U2F device now."
	authenticateHead   = "Authenticate Device"
	authenticatePrompt = "Please touch your U2F device now."
	badCredentials     = "Invalid credentials."
)

type loginPage struct {
	Action string
	Method string
	Error  string
}

type successPage struct {
	Username string
	Logout   string
}

type devicePage struct {
	Heading  string
	Prompt   string
	Kind     string
	Options  any
	Endpoint string
	Next     string
}

var pageTemplates = template.Must(template.New("layout").Parse(`{{define "head"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>CAS - Central Authentication Service</title>
</head>
<body>
<div id="container">
<header id="app-name">Central Authentication Service</header>
<main id="content">{{end}}
{{define "foot"}}</main>
</div>
</body>
</html>{{end}}

{{define "login"}}{{template "head"}}
<div id="login">
<form method="post" id="fm1" action="{{.Action}}">
<h3>Enter Username &amp; Password</h3>
{{if .Error}}<div id="loginErrorsPanel" class="banner banner-danger"><p>{{.Error}}</p></div>{{end}}
<section class="form-group">
<label for="username">Username:</label>
<input id="username" name="username" type="text" autocomplete="off" required>
</section>
<section class="form-group">
<label for="password">Password:</label>
<input id="password" name="password" type="password" autocomplete="off" required>
</section>
<input type="hidden" name="authn_method" value="{{.Method}}">
<input type="hidden" name="_eventId" value="submit">
<button class="btn btn-submit" name="submitBtn" type="submit">Login</button>
</form>
</div>
{{template "foot"}}{{end}}

{{define "success"}}{{template "head"}}
<div id="msg" class="success">
<h2>Log In Successful</h2>
<p>You, <strong>{{.Username}}</strong>, have successfully logged into the Central Authentication Service.</p>
<a id="logout" href="{{.Logout}}">Log out</a>
</div>
{{template "foot"}}{{end}}

{{define "device"}}{{template "head"}}
<div id="login" data-ceremony="{{.Kind}}">
<h3>{{.Heading}}</h3>
<p>{{.Prompt}}</p>
<div id="u2fStatus" role="status"></div>
</div>
<script id="u2fOptions" type="application/json">{{.Options}}</script>
<script>
(function () {
  const dec = s => Uint8Array.from(atob(s.replace(/-/g, "+").replace(/_/g, "/")), c => c.charCodeAt(0));
  const enc = b => btoa(String.fromCharCode(...new Uint8Array(b))).replace(/\+/g, "-").replace(/\//g, "_").replace(/=+$/, "");
  const status = document.getElementById("u2fStatus");
  const opts = JSON.parse(document.getElementById("u2fOptions").textContent);
  opts.challenge = dec(opts.challenge);
  if (opts.user) opts.user.id = dec(opts.user.id);
  (opts.excludeCredentials || []).forEach(c => c.id = dec(c.id));
  (opts.allowCredentials || []).forEach(c => c.id = dec(c.id));

  const ceremony = {{.Kind}} === "register"
    ? navigator.credentials.create({publicKey: opts})
    : navigator.credentials.get({publicKey: opts});

  ceremony.then(cred => {
    const r = cred.response;
    const response = {clientDataJSON: enc(r.clientDataJSON)};
    if (r.attestationObject) response.attestationObject = enc(r.attestationObject);
    if (r.authenticatorData) response.authenticatorData = enc(r.authenticatorData);
    if (r.signature) response.signature = enc(r.signature);
    if (r.userHandle) response.userHandle = enc(r.userHandle);
    return fetch({{.Endpoint}}, {
      method: "POST",
      credentials: "same-origin",
      headers: {"Content-Type": "application/json"},
      body: JSON.stringify({id: cred.id, rawId: enc(cred.rawId), type: cred.type, response: response})
    });
  }).then(res => {
    if (!res.ok) throw new Error("device rejected: " + res.status);
    window.location.assign({{.Next}});
  }).catch(err => {
    status.textContent = err.message;
  });
})();
</script>
{{template "foot"}}{{end}}
`))

func render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = pageTemplates.ExecuteTemplate(w, name, data)
}
