package exporters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Protocol is the OTLP transport to the collector
type Protocol string

const (
	ProtocolGRPC Protocol = "grpc"
	ProtocolHTTP Protocol = "http"
)

const defaultExportTimeout = 10 * time.Second

// ParseProtocol reads OTLP_PROTOCOL. Empty means grpc.
func ParseProtocol(value string) (Protocol, error) {
	switch p := Protocol(strings.ToLower(strings.TrimSpace(value))); p {
	case "":
		return ProtocolGRPC, nil
	case ProtocolGRPC, ProtocolHTTP:
		return p, nil
	default:
		return "", fmt.Errorf("unsupported OTLP protocol %q, use grpc or http", value)
	}
}

// OTLPConfig is the collector job spans are exported to
type OTLPConfig struct {
	Endpoint string
	Protocol Protocol
	// Insecure disables TLS, for a collector sidecar or local dev
	Insecure bool
	Timeout  time.Duration
}

// NewOTLPExporter creates the span exporter for cfg.Protocol. Neither transport dials until the first export.
func NewOTLPExporter(ctx context.Context, cfg OTLPConfig) (sdktrace.SpanExporter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTLP endpoint is required when OTLP export is enabled")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultExportTimeout
	}

	switch cfg.Protocol {
	case ProtocolGRPC, "":
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithTimeout(timeout),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		}
		return otlptracegrpc.New(ctx, opts...)
	case ProtocolHTTP:
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithTimeout(timeout),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", cfg.Protocol)
	}
}
