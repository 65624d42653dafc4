// Package lightmq is a publish/subscribe messaging client modelled on MQ
// Light. A Client connects to a service, sends messages to topics at QoS 0 or
// 1, and subscribes to topic patterns with '#' and '+' wildcards, optionally
// sharing a subscription between clients under a share name.
//
// Every operation is asynchronous: the call validates its arguments and
// returns, and the outcome arrives on a callback. Callbacks and event
// listeners (OnConnected, OnDisconnected, OnError, OnMessage, OnMalformed)
// run one at a time on the client's cooperative loop, so they never race with
// each other. Pass ClientDependencies.Loop to drive that loop yourself;
// otherwise the client runs its own until Close.
//
// # Transports
//
// The wire is a Watermill engine. Config.Transport selects the backend:
//   - channel: in-memory Go channels for tests and local development
//   - rabbitmq: AMQP 0.9.1 exchanges and queues
//   - nats: NATS core subjects with queue groups for shares
//   - kafka: Kafka topics with consumer groups for shares
//   - aws: SNS topics fanned out to SQS queues, with LocalStack support
//
// Additional backends register through RegisterTransport, and a wholly custom
// messenger can be supplied with ClientDependencies.EngineFactory.
//
// # Credit
//
// Each subscription holds a fixed window of link credit. Auto-confirmed
// deliveries return their credit as soon as they are handed out; with
// AutoConfirm disabled at QoS 1 the application calls Delivery.Confirm, and
// the link stops receiving once the window is exhausted.
//
// # Observability
//
// Clients log through a ServiceLogger (slog or Watermill adapters), record
// Prometheus counters in ClientMetrics when Config.MetricsEnabled is set or a
// metrics set is injected, and open OpenTelemetry spans for every send and
// delivery.
package lightmq
