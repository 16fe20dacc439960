package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/chromedp/cdproto/webauthn"
	"github.com/chromedp/chromedp"

	"github.com/raysh454/casprobe/internal/logging"
)

// ErrNoAuthenticator is returned when credentials are requested from a page
// without a virtual authenticator.
var ErrNoAuthenticator = errors.New("no virtual authenticator attached")

// u2fOptions emulates a USB U2F security key that answers touch requests by itself.
func u2fOptions() *webauthn.VirtualAuthenticatorOptions {
	return &webauthn.VirtualAuthenticatorOptions{
		Protocol:                    webauthn.AuthenticatorProtocolU2f,
		Transport:                   webauthn.AuthenticatorTransportUsb,
		HasResidentKey:              false,
		HasUserVerification:         false,
		AutomaticPresenceSimulation: true,
		IsUserVerified:              false,
	}
}

// AddVirtualAuthenticator enables the WebAuthn domain on the tab and plugs in
// an emulated U2F key.
func (p *Page) AddVirtualAuthenticator(ctx context.Context) (webauthn.AuthenticatorID, error) {
	var id webauthn.AuthenticatorID
	err := p.run(ctx, p.cfg.ActionTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := webauthn.Enable().WithEnableUI(false).Do(ctx); err != nil {
			return fmt.Errorf("enable webauthn: %w", err)
		}
		var err error
		id, err = webauthn.AddVirtualAuthenticator(u2fOptions()).Do(ctx)
		return err
	}))
	if err != nil {
		return "", err
	}
	p.authenticator = id
	p.logger.Debug("virtual u2f authenticator attached", logging.Field{Key: "authenticator_id", Value: string(id)})
	return id, nil
}

// Credentials lists the credentials registered on the page's virtual authenticator.
func (p *Page) Credentials(ctx context.Context) ([]*webauthn.Credential, error) {
	if p.authenticator == "" {
		return nil, ErrNoAuthenticator
	}
	var creds []*webauthn.Credential
	err := p.run(ctx, p.cfg.ActionTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		creds, err = webauthn.GetCredentials(p.authenticator).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("list virtual credentials: %w", err)
	}
	return creds, nil
}
