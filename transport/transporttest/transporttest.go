// Package transporttest provides a static transport.Config and no-op
// Watermill doubles for backend tests.
package transporttest

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Config is a settable transport.Config.
type Config struct {
	Transport             string
	ServiceURL            string
	ClientID              string
	User                  string
	Password              string
	TLSInsecureSkipVerify bool
	KafkaBrokers          []string
	NATSURL               string
	AWSRegion             string
	AWSAccountID          string
	AWSAccessKeyID        string
	AWSSecretAccessKey    string
	AWSEndpoint           string
}

func (c *Config) GetTransport() string           { return c.Transport }
func (c *Config) GetServiceURL() string          { return c.ServiceURL }
func (c *Config) GetClientID() string            { return c.ClientID }
func (c *Config) GetUser() string                { return c.User }
func (c *Config) GetPassword() string            { return c.Password }
func (c *Config) GetTLSInsecureSkipVerify() bool { return c.TLSInsecureSkipVerify }
func (c *Config) GetKafkaBrokers() []string      { return c.KafkaBrokers }
func (c *Config) GetNATSURL() string             { return c.NATSURL }
func (c *Config) GetAWSRegion() string           { return c.AWSRegion }
func (c *Config) GetAWSAccountID() string        { return c.AWSAccountID }
func (c *Config) GetAWSAccessKeyID() string      { return c.AWSAccessKeyID }
func (c *Config) GetAWSSecretAccessKey() string  { return c.AWSSecretAccessKey }
func (c *Config) GetAWSEndpoint() string         { return c.AWSEndpoint }

// Publisher accepts and drops messages.
type Publisher struct {
	Closed bool
}

func (p *Publisher) Publish(string, ...*message.Message) error { return nil }
func (p *Publisher) Close() error                              { p.Closed = true; return nil }

// Subscriber returns a channel that never yields.
type Subscriber struct {
	Closed bool
}

func (s *Subscriber) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	return make(chan *message.Message), nil
}

func (s *Subscriber) Close() error { s.Closed = true; return nil }
