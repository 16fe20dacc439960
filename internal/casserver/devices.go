package casserver

import (
	"crypto/sha256"
	"sync"

	"github.com/go-webauthn/webauthn/webauthn"
)

// casUser adapts a CAS principal to webauthn.User.
type casUser struct {
	name  string
	creds []webauthn.Credential
}

func (u *casUser) WebAuthnID() []byte {
	sum := sha256.Sum256([]byte(u.name))
	return sum[:16]
}

func (u *casUser) WebAuthnName() string        { return u.name }
func (u *casUser) WebAuthnDisplayName() string { return u.name }

func (u *casUser) WebAuthnCredentials() []webauthn.Credential {
	return u.creds
}

// DeviceRegistry keeps registered U2F devices per principal in memory.
type DeviceRegistry struct {
	mu      sync.RWMutex
	devices map[string][]webauthn.Credential
}

func NewDeviceRegistry() *DeviceRegistry {
	return &DeviceRegistry{devices: make(map[string][]webauthn.Credential)}
}

func (d *DeviceRegistry) user(name string) *casUser {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return &casUser{name: name, creds: append([]webauthn.Credential(nil), d.devices[name]...)}
}

func (d *DeviceRegistry) add(name string, cred webauthn.Credential) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.devices[name] = append(d.devices[name], cred)
}

// update stores the refreshed sign counter after an authentication.
func (d *DeviceRegistry) update(name string, cred webauthn.Credential) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, c := range d.devices[name] {
		if string(c.ID) == string(cred.ID) {
			d.devices[name][i] = cred
			return
		}
	}
}

// Count returns how many devices name has registered.
func (d *DeviceRegistry) Count(name string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.devices[name])
}

// Counts returns the number of registered devices per principal.
func (d *DeviceRegistry) Counts() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]int, len(d.devices))
	for name, creds := range d.devices {
		out[name] = len(creds)
	}
	return out
}

// Remove forgets the devices of name and returns how many there were.
func (d *DeviceRegistry) Remove(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.devices[name])
	delete(d.devices, name)
	return n
}

// Reset forgets every registered device.
func (d *DeviceRegistry) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.devices = make(map[string][]webauthn.Credential)
}
