package auth

import (
	"context"
	"sync"
)

// Signer is the part of Service a device session needs.
type Signer interface {
	Verifier
	SignInAnonymously(ctx context.Context, clientID string) (*Tokens, error)
}

// DeviceAuth is the auth state of one device connection. An empty uid
// means signed out.
type DeviceAuth struct {
	signer   Signer
	clientID string

	mu     sync.Mutex
	uid    string
	tokens *Tokens
	subs   map[int]func(uid string)
	nextID int
}

func NewDeviceAuth(signer Signer, clientID string) *DeviceAuth {
	return &DeviceAuth{signer: signer, clientID: clientID, subs: map[int]func(string){}}
}

// Restore adopts a previously issued access token. An invalid token
// leaves the device signed out.
func (d *DeviceAuth) Restore(token string) error {
	claims, err := d.signer.Verify(token)
	if err != nil {
		return err
	}
	d.set(claims.Subject, nil)
	return nil
}

// OnAuthStateChange calls fn with the current uid and again after every
// change. The returned func unsubscribes.
func (d *DeviceAuth) OnAuthStateChange(fn func(uid string)) (unsubscribe func()) {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.subs[id] = fn
	uid := d.uid
	d.mu.Unlock()

	fn(uid)
	return func() {
		d.mu.Lock()
		delete(d.subs, id)
		d.mu.Unlock()
	}
}

// SignInAnonymously creates a fresh identity for the device.
func (d *DeviceAuth) SignInAnonymously(ctx context.Context) (string, error) {
	tokens, err := d.signer.SignInAnonymously(ctx, d.clientID)
	if err != nil {
		return "", err
	}
	d.set(tokens.UID, tokens)
	return tokens.UID, nil
}

func (d *DeviceAuth) UID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.uid
}

// Tokens returns the tokens issued to this device, or nil when the
// identity was restored from an existing token.
func (d *DeviceAuth) Tokens() *Tokens {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tokens
}

func (d *DeviceAuth) set(uid string, tokens *Tokens) {
	d.mu.Lock()
	changed := d.uid != uid
	d.uid = uid
	d.tokens = tokens
	fns := make([]func(string), 0, len(d.subs))
	for _, fn := range d.subs {
		fns = append(fns, fn)
	}
	d.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range fns {
		fn(uid)
	}
}
