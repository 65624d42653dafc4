// Package topic implements topic pattern validation and matching. Topics are
// '/' separated levels; in a pattern '+' matches exactly one level and '#'
// matches any number of trailing levels, including none.
package topic

import (
	"fmt"
	"strings"
)

const (
	separator   = "/"
	singleLevel = "+"
	multiLevel  = "#"
)

// Validate reports whether pattern places its wildcards legally.
func Validate(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("topic pattern is empty")
	}
	levels := strings.Split(pattern, separator)
	for i, level := range levels {
		if strings.Contains(level, multiLevel) {
			if level != multiLevel {
				return fmt.Errorf("topic pattern %q: '#' must occupy a whole level", pattern)
			}
			if i != len(levels)-1 {
				return fmt.Errorf("topic pattern %q: '#' must be the last level", pattern)
			}
		}
		if strings.Contains(level, singleLevel) && level != singleLevel {
			return fmt.Errorf("topic pattern %q: '+' must occupy a whole level", pattern)
		}
	}
	return nil
}

// Match reports whether topic is selected by pattern. Invalid patterns never
// match.
func Match(pattern, topic string) bool {
	if Validate(pattern) != nil {
		return false
	}
	p := strings.Split(pattern, separator)
	t := strings.Split(topic, separator)

	for i, level := range p {
		if level == multiLevel {
			return true
		}
		if i >= len(t) {
			return false
		}
		if level != singleLevel && level != t[i] {
			return false
		}
	}
	return len(p) == len(t)
}

// IsWildcard reports whether pattern contains a wildcard level.
func IsWildcard(pattern string) bool {
	return strings.ContainsAny(pattern, singleLevel+multiLevel)
}
