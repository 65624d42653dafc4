package lightmq

import (
	runtimepkg "github.com/drblury/lightmq/internal/runtime"
	configpkg "github.com/drblury/lightmq/internal/runtime/config"
	enginepkg "github.com/drblury/lightmq/internal/runtime/engine"
	errspkg "github.com/drblury/lightmq/internal/runtime/errors"
	idspkg "github.com/drblury/lightmq/internal/runtime/ids"
	jsoncodec "github.com/drblury/lightmq/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/lightmq/internal/runtime/logging"
	servicepkg "github.com/drblury/lightmq/internal/runtime/service"
	topicpkg "github.com/drblury/lightmq/internal/runtime/topic"
	transportpkg "github.com/drblury/lightmq/internal/runtime/transport"
	lmtransport "github.com/drblury/lightmq/transport"
)

type (
	Config             = configpkg.Config
	Client             = runtimepkg.Client
	ClientDependencies = runtimepkg.ClientDependencies
	ClientMetrics      = runtimepkg.ClientMetrics
	State              = runtimepkg.State

	SendOptions         = runtimepkg.SendOptions
	SubscribeOptions    = runtimepkg.SubscribeOptions
	Subscription        = runtimepkg.Subscription
	ConnectCallback     = runtimepkg.ConnectCallback
	DisconnectCallback  = runtimepkg.DisconnectCallback
	SendCallback        = runtimepkg.SendCallback
	SubscribeCallback   = runtimepkg.SubscribeCallback
	UnsubscribeCallback = runtimepkg.UnsubscribeCallback
	MessageHandler      = runtimepkg.MessageHandler

	Delivery    = runtimepkg.Delivery
	Message     = runtimepkg.Message
	Destination = runtimepkg.Destination
	Malformed   = runtimepkg.Malformed

	// Engine types for plugging in a custom messenger.
	Messenger        = enginepkg.Messenger
	Envelope         = enginepkg.Envelope
	EnvelopeStatus   = enginepkg.Status
	RawDelivery      = enginepkg.RawDelivery
	Annotation       = enginepkg.Annotation
	LinkOptions      = enginepkg.LinkOptions
	Session          = enginepkg.Session
	EngineFactory    = enginepkg.Factory
	WatermillOptions = enginepkg.WatermillOptions

	ServiceSource = servicepkg.Source
	ServiceFunc   = servicepkg.Func

	TransportFactory     = transportpkg.Factory
	TransportFactoryFunc = transportpkg.FactoryFunc
	Transport            = lmtransport.Transport
	TransportBuilder     = lmtransport.Builder
	TransportConfig      = lmtransport.Config
	TransportRegistry    = lmtransport.Registry
	Capabilities         = lmtransport.Capabilities

	ServiceLogger = loggingpkg.ServiceLogger
	LogFields     = loggingpkg.LogFields

	ValidationError       = errspkg.ValidationError
	ConfigValidationError = errspkg.ConfigValidationError
	StateError            = errspkg.StateError
	TransportError        = errspkg.TransportError
)

const (
	StateDisconnected  = runtimepkg.StateDisconnected
	StateConnecting    = runtimepkg.StateConnecting
	StateConnected     = runtimepkg.StateConnected
	StateDisconnecting = runtimepkg.StateDisconnecting
	StateRetrying      = runtimepkg.StateRetrying

	ContentTypeText  = runtimepkg.ContentTypeText
	ContentTypeBytes = runtimepkg.ContentTypeBytes
	ContentTypeJSON  = runtimepkg.ContentTypeJSON

	EnvelopePending = enginepkg.StatusPending
	EnvelopeSettled = enginepkg.StatusSettled
	EnvelopeFailed  = enginepkg.StatusFailed

	ConfigEnvPrefix = configpkg.EnvPrefix
)

var (
	NewClient        = runtimepkg.NewClient
	NewClientMetrics = runtimepkg.NewClientMetrics
	ValidateConfig   = configpkg.ValidateConfig
	ValidateClientID = configpkg.ValidateClientID
	LoadConfig       = configpkg.Load
	BindConfigFlags  = configpkg.BindFlags

	StaticService    = servicepkg.Static
	ResolveService   = servicepkg.Resolve
	NormalizeService = servicepkg.Normalize

	NewWatermillFactory     = enginepkg.NewWatermillFactory
	DefaultTransportFactory = transportpkg.DefaultFactory

	DefaultTransportRegistry = lmtransport.DefaultRegistry
	RegisterTransport        = lmtransport.Register
	BuildTransport           = lmtransport.Build
	GetCapabilities          = lmtransport.GetCapabilities

	ValidateTopicPattern = topicpkg.Validate
	MatchTopic           = topicpkg.Match

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NewNopServiceLogger       = loggingpkg.NewNopServiceLogger

	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal

	CreateULID   = idspkg.CreateULID
	AutoClientID = idspkg.AutoClientID

	ErrConfigRequired     = errspkg.ErrConfigRequired
	ErrLoggerRequired     = errspkg.ErrLoggerRequired
	ErrServiceRequired    = errspkg.ErrServiceRequired
	ErrServiceListEmpty   = errspkg.ErrServiceListEmpty
	ErrClientIDTooLong    = errspkg.ErrClientIDTooLong
	ErrClientIDInvalid    = errspkg.ErrClientIDInvalid
	ErrTopicRequired      = errspkg.ErrTopicRequired
	ErrPatternRequired    = errspkg.ErrPatternRequired
	ErrPayloadRequired    = errspkg.ErrPayloadRequired
	ErrUnsupportedPayload = errspkg.ErrUnsupportedPayload
	ErrInvalidQoS         = errspkg.ErrInvalidQoS
	ErrInvalidTTL         = errspkg.ErrInvalidTTL
	ErrInvalidCredit      = errspkg.ErrInvalidCredit
	ErrInvalidShare       = errspkg.ErrInvalidShare
	ErrCallbackRequired   = errspkg.ErrCallbackRequired
	ErrNotConnected       = errspkg.ErrNotConnected
	ErrAlreadySubscribed  = errspkg.ErrAlreadySubscribed
	ErrNotSubscribed      = errspkg.ErrNotSubscribed
	ErrAlreadyConfirmed   = errspkg.ErrAlreadyConfirmed
	ErrConnectCancelled   = errspkg.ErrConnectCancelled
	ErrClientClosed       = errspkg.ErrClientClosed
)
