package scenario

const (
	// MFAU2FRegister logs in with the U2F provider selected and expects the
	// device registration prompt.
	MFAU2FRegister = "mfa-u2f-register"

	// MFAU2FRegisterDevice completes the registration ceremony with a
	// virtual security key.
	MFAU2FRegisterDevice = "mfa-u2f-register-device"

	// U2FMethod is the authn_method value selecting the U2F provider.
	U2FMethod = "mfa-u2f"

	U2FRegisterHeading = "Register Device"
	U2FTouchPrompt     = "Please touch the flashing U2F device now."
	LoginSuccessHeader = "Log In Successful"
)

func init() {
	Register(MFAU2FRegister, NewMFAU2FRegister)
	Register(MFAU2FRegisterDevice, NewMFAU2FRegisterDevice)
}

// NewMFAU2FRegister builds the U2F registration scenario. It needs the
// prompt to stay up, so it refuses to run with a virtual authenticator.
func NewMFAU2FRegister() *Scenario {
	return &Scenario{
		Name:          MFAU2FRegister,
		Description:   "log in with authn_method=mfa-u2f and expect the U2F device registration prompt",
		Authenticator: NoAuthenticator,
		Steps: []Step{
			Refresh(),
			LaunchBrowser(),
			OpenPage(),
			GotoLogin(U2FMethod),
			Login(),
			AssertText("#login h3", U2FRegisterHeading),
			AssertText("#login p", U2FTouchPrompt),
		},
	}
}

// NewMFAU2FRegisterDevice builds the scenario that lets a virtual key answer
// the registration prompt. Devices left on file from earlier runs are
// removed first, and the new one is removed again at the end.
func NewMFAU2FRegisterDevice() *Scenario {
	return &Scenario{
		Name:          MFAU2FRegisterDevice,
		Description:   "register a virtual U2F key through authn_method=mfa-u2f and expect a completed login",
		Authenticator: WithAuthenticator,
		Steps: []Step{
			Refresh(),
			ForgetDevices("forget-devices"),
			LaunchBrowser(),
			OpenPage(),
			GotoLogin(U2FMethod),
			Login(),
			AssertText("#content h2", LoginSuccessHeader),
			AssertCredentials(1),
			ForgetDevices("remove-device"),
		},
	}
}
