/*
Package runtime implements the lightmq client.

# Architecture Overview

A Client owns a state machine (disconnected, connecting, connected,
disconnecting) and a Messenger from the engine package. Public methods
validate their input and check the state under the client mutex, then post
the real work to a cooperative loop. Outcomes reach the caller through
callbacks and event listeners, which also run as loop tasks.

# Package Structure

## Client (client.go, connect.go)

NewClient validates the Config, resolves defaults and wires the engine
factory, metrics and tracer. Connect and Disconnect move the state machine.
Each connect bumps a generation counter; work scheduled under an older
generation finds the messenger gone and reports ErrNotConnected instead of
touching the new connection.

## Send (send.go, body.go)

Send encodes the payload (text, bytes, protobuf or JSON), puts an envelope on
the messenger and polls its status until the engine settles or fails it.

## Subscribe (subscribe.go, credit.go, delivery.go)

Subscribe opens a link with a credit window. A receive task per link drains
the engine, routes each delivery to its subscription and either settles it at
once or hands out a Confirm function that returns the credit later.

## Events (events.go)

Listeners are snapshotted at emission time and each runs as its own loop
task, so a panicking listener does not stop the others.

## Observability (metrics.go, tracing.go)

ClientMetrics exports sends, failures, deliveries, confirms, state
transitions and link credit to Prometheus. Sends and deliveries open
OpenTelemetry producer and consumer spans.

# Subpackages

  - config: Config, validation and viper loading
  - engine: the Messenger contract and its Watermill implementation
  - errors: sentinel errors and the validation, state and transport wrappers
  - ids: client and envelope identifiers
  - jsoncodec: sonic-backed JSON
  - logging: the ServiceLogger abstraction
  - loop: the cooperative task loop
  - metadata: Watermill metadata helpers used by the engine
  - service: service URL sources and normalization
  - topic: topic pattern validation and matching
  - transport: binds Config to the backend registry
*/
package runtime
