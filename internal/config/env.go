package config

import (
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

const (
	EnvOutput        = "AMBILIGHT_OUTPUT"
	EnvDevice        = "AMBILIGHT_DEVICE"
	EnvRetries       = "AMBILIGHT_RETRIES"
	EnvBlankWhenIdle = "AMBILIGHT_BLANK_WHEN_IDLE"
	EnvDebug         = "AMBILIGHT_DEBUG"
)

// ApplyEnv overrides c with the AMBILIGHT_* variables that are set.
func (c *Config) ApplyEnv() {
	c.Output = StringEnv(EnvOutput, c.Output)
	c.Device = StringEnv(EnvDevice, c.Device)
	c.Retries = IntEnvClamped(EnvRetries, c.Retries, 0, math.MaxInt32)
	c.BlankWhenIdle = BoolEnv(EnvBlankWhenIdle, c.BlankWhenIdle)
	if BoolEnv(EnvDebug, false) {
		c.LogLevel = zerolog.DebugLevel.String()
	}
}

func StringEnv(name, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return defaultValue
}

func BoolEnv(name string, defaultValue bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if v == "" {
		return defaultValue
	}

	switch v {
	case "1", "true", "on", "yes":
		return true
	case "0", "false", "off", "no":
		return false
	default:
		return defaultValue
	}
}

func IntEnvClamped(name string, defaultValue, minValue, maxValue int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return defaultValue
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}

	if minValue <= maxValue {
		n = max(minValue, min(n, maxValue))
	}
	return n
}
