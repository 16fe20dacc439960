package casserver

import (
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
)

const (
	// ceremonyCookie tracks a pending U2F ceremony between the login POST
	// and the device response.
	ceremonyCookie = "CASMFA"
	// ticketCookie carries the ticket-granting ticket once login completes.
	ticketCookie = "TGC"
)

type ceremonyKind string

const (
	ceremonyRegister     ceremonyKind = "register"
	ceremonyAuthenticate ceremonyKind = "authenticate"
)

type ceremony struct {
	Username string
	Origin   string
	Kind     ceremonyKind
	Session  webauthn.SessionData
}

// sessionStore keeps pending ceremonies and issued tickets with expiry.
type sessionStore struct {
	takeMu     sync.Mutex
	ceremonies *ttlcache.Cache[string, ceremony]
	tickets    *ttlcache.Cache[string, string]
}

func newSessionStore(ttl time.Duration) *sessionStore {
	return &sessionStore{
		ceremonies: ttlcache.New[string, ceremony](
			ttlcache.WithTTL[string, ceremony](ttl),
			ttlcache.WithDisableTouchOnHit[string, ceremony](),
		),
		tickets: ttlcache.New[string, string](
			ttlcache.WithTTL[string, string](8 * time.Hour),
		),
	}
}

func (s *sessionStore) start() {
	go s.ceremonies.Start()
	go s.tickets.Start()
}

func (s *sessionStore) stop() {
	s.ceremonies.Stop()
	s.tickets.Stop()
}

func (s *sessionStore) beginCeremony(c ceremony) string {
	id := uuid.NewString()
	s.ceremonies.Set(id, c, ttlcache.DefaultTTL)
	return id
}

// takeCeremony returns and forgets the ceremony so a response cannot be replayed.
func (s *sessionStore) takeCeremony(id string) (ceremony, bool) {
	s.takeMu.Lock()
	defer s.takeMu.Unlock()
	item := s.ceremonies.Get(id)
	if item == nil {
		return ceremony{}, false
	}
	s.ceremonies.Delete(id)
	return item.Value(), true
}

func (s *sessionStore) issueTicket(username string) string {
	id := "TGT-" + uuid.NewString()
	s.tickets.Set(id, username, ttlcache.DefaultTTL)
	return id
}

func (s *sessionStore) ticketUser(id string) (string, bool) {
	item := s.tickets.Get(id)
	if item == nil {
		return "", false
	}
	return item.Value(), true
}
