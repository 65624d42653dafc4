package transport

import (
	"github.com/drblury/lightmq/internal/runtime/config"
	"github.com/drblury/lightmq/internal/runtime/engine"
)

// SessionConfig is the transport.Config a backend sees for one connect: the
// client configuration plus the resolved service and the session identity.
type SessionConfig struct {
	*config.Config
	Service string
	Session engine.Session
}

func (s *SessionConfig) GetTransport() string {
	if s.Config == nil || s.Config.Transport == "" {
		return config.DefaultTransport
	}
	return s.Config.Transport
}

func (s *SessionConfig) GetServiceURL() string { return s.Service }
func (s *SessionConfig) GetClientID() string   { return s.Session.ClientID }
func (s *SessionConfig) GetUser() string       { return s.Session.User }
func (s *SessionConfig) GetPassword() string   { return s.Session.Password }
