package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidTopicSpec = errors.New("invalid topic spec")

// TopicSpec is a bus topic plus an optional path into a JSON payload.
// An empty Path means the payload is a bare number.
type TopicSpec struct {
	Topic string
	Path  []string
}

// ParseTopicSpec parses "<topic>" or "<topic>:<dotted.path>".
func ParseTopicSpec(spec string) (TopicSpec, error) {
	topic, path, hasPath := strings.Cut(spec, ":")
	if topic == "" {
		return TopicSpec{}, fmt.Errorf("%w %q: empty topic", ErrInvalidTopicSpec, spec)
	}
	if strings.ContainsAny(topic, "+#") {
		return TopicSpec{}, fmt.Errorf("%w %q: wildcards are not supported", ErrInvalidTopicSpec, spec)
	}
	if !hasPath || path == "" {
		return TopicSpec{Topic: topic}, nil
	}
	if strings.Contains(path, ":") {
		return TopicSpec{}, fmt.Errorf("%w %q: more than one ':'", ErrInvalidTopicSpec, spec)
	}
	segments := strings.Split(path, ".")
	for _, s := range segments {
		if s == "" {
			return TopicSpec{}, fmt.Errorf("%w %q: empty path segment", ErrInvalidTopicSpec, spec)
		}
	}
	return TopicSpec{Topic: topic, Path: segments}, nil
}

func (s TopicSpec) HasPath() bool {
	return len(s.Path) > 0
}

func (s TopicSpec) String() string {
	if !s.HasPath() {
		return s.Topic
	}
	return s.Topic + ":" + strings.Join(s.Path, ".")
}
