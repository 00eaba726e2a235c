package observability

import (
	"strings"

	"github.com/smallbiznis/edupoints/internal/config"
)

const defaultServiceName = "edupoints"

// Config is the resolved telemetry setup for one points service process.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

// LoadConfig resolves telemetry from the application config. Development
// environments log text at debug and sample every trace so a single earn
// can be followed end to end; everything else logs json at info and samples
// a tenth of requests.
func LoadConfig(cfg config.Config) Config {
	out := Config{
		ServiceName:          strings.TrimSpace(cfg.AppName),
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             cfg.Telemetry.LogLevel,
		LogFormat:            cfg.Telemetry.LogFormat,
		OtelEnabled:          cfg.Telemetry.OtelEnabled,
		OtelExporterEndpoint: strings.TrimSpace(cfg.OTLPEndpoint),
		OtelExporterProtocol: cfg.Telemetry.OtelProtocol,
		OtelSamplingRatio:    cfg.Telemetry.SamplingRatio,
	}
	if out.ServiceName == "" {
		out.ServiceName = defaultServiceName
	}

	dev := isDevEnv(out.Environment)
	if out.LogLevel == "" {
		out.LogLevel = "info"
		if dev {
			out.LogLevel = "debug"
		}
	}
	if out.LogFormat == "" {
		out.LogFormat = "json"
		if dev {
			out.LogFormat = "console"
		}
	}
	if out.OtelExporterProtocol == "" {
		out.OtelExporterProtocol = "grpc"
	}
	if out.OtelSamplingRatio < 0 || out.OtelSamplingRatio > 1 {
		out.OtelSamplingRatio = 0.1
		if dev {
			out.OtelSamplingRatio = 1
		}
	}
	return out
}

func (c Config) Debug() bool {
	return c.LogLevel == "debug" || isDevEnv(c.Environment)
}

func isDevEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
