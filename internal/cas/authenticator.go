package cas

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/webauthn"

	"github.com/raysh454/casprobe/internal/browser"
)

// CredentialSource is implemented by pages with an emulated security key attached.
type CredentialSource interface {
	Credentials(ctx context.Context) ([]*webauthn.Credential, error)
}

// RegisteredCredentials returns how many credentials the page's virtual
// authenticator holds.
func RegisteredCredentials(ctx context.Context, page Page) (int, error) {
	src, ok := page.(CredentialSource)
	if !ok {
		return 0, browser.ErrNoAuthenticator
	}
	creds, err := src.Credentials(ctx)
	if err != nil {
		return 0, err
	}
	return len(creds), nil
}

// AssertCredentialCount fails with ErrCredentialCount unless the virtual
// authenticator holds exactly want credentials.
func AssertCredentialCount(ctx context.Context, page Page, want int) error {
	got, err := RegisteredCredentials(ctx, page)
	if err != nil {
		return fmt.Errorf("list credentials: %w", err)
	}
	if got != want {
		return fmt.Errorf("%w: virtual authenticator holds %d, expected %d", ErrCredentialCount, got, want)
	}
	return nil
}
