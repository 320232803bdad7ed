package config

import (
	"fmt"
	"strconv"
	"strings"
)

// With returns a copy of id with one keyed field replaced.
func (id Identity) With(key, value string) (Identity, error) {
	value = strings.TrimSpace(value)
	switch normalizeKey(key) {
	case KeyName:
		if value == "" {
			return id, fmt.Errorf("%s must not be empty", KeyName)
		}
		id.DisplayName = value
	case KeyPort:
		port, err := parsePort(KeyPort, value)
		if err != nil {
			return id, err
		}
		id.ListenPort = port
	case KeyTargetPort:
		port, err := parsePort(KeyTargetPort, value)
		if err != nil {
			return id, err
		}
		id.TargetPort = port
	case KeyAdapter:
		id.Adapter = value
	default:
		return id, fmt.Errorf("unknown setting %q (want one of: name, port, target_port, adapter)", key)
	}
	return id, nil
}

// Validate checks identity invariants.
func (id Identity) Validate() error {
	if strings.TrimSpace(id.DisplayName) == "" {
		return fmt.Errorf("%s must not be empty", KeyName)
	}
	if !validPort(id.ListenPort) {
		return fmt.Errorf("%s must be within 1-65535, got %d", KeyPort, id.ListenPort)
	}
	if !validPort(id.TargetPort) {
		return fmt.Errorf("%s must be within 1-65535, got %d", KeyTargetPort, id.TargetPort)
	}
	return nil
}

func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	switch key {
	case "targetport", "target-port":
		return KeyTargetPort
	case "display_name", "displayname":
		return KeyName
	case "listen_port", "listenport":
		return KeyPort
	}
	return key
}

func parsePort(key, value string) (int, error) {
	port, err := strconv.Atoi(value)
	if err != nil || !validPort(port) {
		return 0, fmt.Errorf("%s must be a port within 1-65535, got %q", key, value)
	}
	return port, nil
}

func validPort(port int) bool {
	return port > 0 && port <= 65535
}
