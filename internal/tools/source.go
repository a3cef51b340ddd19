// Package tools holds the agent tool working-set: which tools exist, grouped by
// the source that provides them, and which of them the agent may call.
package tools

import (
	"fmt"
	"strings"
)

// SourceKind distinguishes built-in tools from externally provided ones.
type SourceKind string

const (
	SourceNative        SourceKind = "native"
	SourceContextServer SourceKind = "context-server"
)

// Source identifies where a tool comes from. It is comparable and usable as a
// map key.
type Source struct {
	Kind SourceKind
	ID   string // context server id; empty for native
}

// Native returns the source of built-in tools.
func Native() Source { return Source{Kind: SourceNative} }

// ContextServer returns the source for the context server with the given id.
func ContextServer(id string) Source {
	return Source{Kind: SourceContextServer, ID: id}
}

// IsNative reports whether s is the built-in source.
func (s Source) IsNative() bool { return s.Kind == SourceNative }

// String renders the source as "native" or "context-server:<id>".
func (s Source) String() string {
	if s.IsNative() {
		return string(SourceNative)
	}
	return string(SourceContextServer) + ":" + s.ID
}

// ParseSource is the inverse of String. A bare id is read as a context server.
func ParseSource(s string) (Source, error) {
	switch {
	case s == "":
		return Source{}, fmt.Errorf("empty tool source")
	case s == string(SourceNative):
		return Native(), nil
	case strings.HasPrefix(s, string(SourceContextServer)+":"):
		id := strings.TrimPrefix(s, string(SourceContextServer)+":")
		if id == "" {
			return Source{}, fmt.Errorf("context server source %q has no id", s)
		}
		return ContextServer(id), nil
	default:
		return ContextServer(s), nil
	}
}

// MarshalText implements encoding.TextMarshaler. The zero Source encodes as
// an empty string.
func (s Source) MarshalText() ([]byte, error) {
	if s == (Source{}) {
		return []byte{}, nil
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Source) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*s = Source{}
		return nil
	}
	parsed, err := ParseSource(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
