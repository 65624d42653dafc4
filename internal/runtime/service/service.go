// Package service validates and normalises the candidate service URLs a client
// may connect to.
package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	errspkg "github.com/drblury/lightmq/internal/runtime/errors"
)

// DefaultPort is inserted when a service URL omits one.
const DefaultPort = 5672

var supportedSchemes = map[string]struct{}{
	"amqp":  {},
	"amqps": {},
}

// Source produces the ordered candidate list for a connect attempt.
type Source interface {
	Services(ctx context.Context) ([]string, error)
}

type staticSource []string

func (s staticSource) Services(context.Context) ([]string, error) {
	return []string(s), nil
}

// Static returns a Source that always yields urls.
func Static(urls ...string) Source {
	return staticSource(urls)
}

// Func adapts an address-producing function. It is invoked on every connect
// attempt.
type Func func(ctx context.Context) ([]string, error)

func (f Func) Services(ctx context.Context) ([]string, error) {
	return f(ctx)
}

// Resolve asks src for its candidates and normalises them.
func Resolve(ctx context.Context, src Source) ([]string, error) {
	if src == nil {
		return nil, errspkg.NewValidationError("service", errspkg.ErrServiceRequired)
	}
	urls, err := src.Services(ctx)
	if err != nil {
		return nil, err
	}
	return Normalize(urls)
}

// Normalize validates every entry and returns them as scheme://host:port.
func Normalize(urls []string) ([]string, error) {
	if urls == nil {
		return nil, errspkg.NewValidationError("service", errspkg.ErrServiceRequired)
	}
	if len(urls) == 0 {
		return nil, errspkg.NewValidationError("service", errspkg.ErrServiceListEmpty)
	}

	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		normalized, err := normalizeOne(raw)
		if err != nil {
			return nil, errspkg.NewValidationError("service", err)
		}
		out = append(out, normalized)
	}
	return out, nil
}

func normalizeOne(raw string) (string, error) {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return "", fmt.Errorf("invalid URL %q specified for service: service URLs must start with amqp:// or amqps://", raw)
	}
	if _, supported := supportedSchemes[scheme]; !supported {
		return "", fmt.Errorf("unsupported URL %q specified for service: only the amqp or amqps protocol are supported", raw)
	}
	if strings.ContainsAny(rest, "/?#") {
		return "", fmt.Errorf("invalid URL %q specified for service: path, query and fragment are not allowed", raw)
	}
	// Credentials travel in Config.User/Password, never in the URL.
	if strings.Contains(rest, "@") {
		return "", fmt.Errorf("invalid URL %q specified for service: credentials must not be embedded", raw)
	}

	host, port, err := splitHostPort(rest)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q specified for service: %w", raw, err)
	}
	return scheme + "://" + host + ":" + strconv.Itoa(port), nil
}

func splitHostPort(hostport string) (string, int, error) {
	host, portText := hostport, ""
	if strings.HasPrefix(hostport, "[") {
		end := strings.Index(hostport, "]")
		if end < 0 {
			return "", 0, fmt.Errorf("missing ']' in host")
		}
		host = hostport[:end+1]
		remainder := hostport[end+1:]
		if remainder != "" {
			if !strings.HasPrefix(remainder, ":") {
				return "", 0, fmt.Errorf("unexpected %q after host", remainder)
			}
			portText = remainder[1:]
			if portText == "" {
				return "", 0, fmt.Errorf("empty port")
			}
		}
	} else if idx := strings.LastIndex(hostport, ":"); idx >= 0 {
		host, portText = hostport[:idx], hostport[idx+1:]
		if portText == "" {
			return "", 0, fmt.Errorf("empty port")
		}
	}

	if host == "" || host == "[]" {
		return "", 0, fmt.Errorf("host is required")
	}
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		return "", 0, fmt.Errorf("too many colons in %q", hostport)
	}
	if portText == "" {
		return host, DefaultPort, nil
	}
	port, err := strconv.Atoi(portText)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port %q", portText)
	}
	return host, port, nil
}
