package config

import (
	"fmt"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

var validLogLevels = []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		add("gateway.port", "port must be 0-65535, got %d", cfg.Gateway.Port)
	}
	validBinds := []string{"auto", "lan", "loopback", "custom"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		add("gateway.bind", "must be one of %v, got %q", validBinds, cfg.Gateway.Bind)
	}
	validAuthModes := []string{"token", "password"}
	if cfg.Gateway.Auth.Mode != "" && !slices.Contains(validAuthModes, cfg.Gateway.Auth.Mode) {
		add("gateway.auth.mode", "must be one of %v, got %q", validAuthModes, cfg.Gateway.Auth.Mode)
	}

	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		add("logging.level", "must be one of %v, got %q", validLogLevels, cfg.Logging.Level)
	}
	validConsoleStyles := []string{"pretty", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		add("logging.consoleStyle", "must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle)
	}

	if cfg.Calls.JoinTimeout < 0 {
		add("calls.joinTimeout", "must not be negative, got %d", cfg.Calls.JoinTimeout)
	}

	for id, p := range cfg.Assistant.Profiles {
		path := "assistant.profiles." + id
		if id == "" {
			add("assistant.profiles", "profile id must not be empty")
		}
		for tool := range p.Tools {
			if tool == "" {
				add(path+".tools", "tool name must not be empty")
			}
		}
	}

	seen := make(map[string]bool)
	for i, cs := range cfg.Assistant.ContextServers {
		path := fmt.Sprintf("assistant.contextServers[%d]", i)
		if cs.ID == "" {
			add(path+".id", "id is required")
		} else if seen[cs.ID] {
			add(path+".id", "duplicate context server id %q", cs.ID)
		}
		seen[cs.ID] = true
		if cs.Command == "" {
			add(path+".command", "command is required")
		}
		if cs.Timeout < 0 {
			add(path+".timeout", "must not be negative, got %d", cs.Timeout)
		}
	}

	return issues
}
