package logger

import (
	"fmt"

	"go.uber.org/zap"
)

// Output encodings accepted by New.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// New builds a production logger at the given verbosity. format selects the
// json (default) or console encoder.
func New(verbosity, format string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	level, err := zap.ParseAtomicLevel(verbosity)
	if err != nil {
		return nil, err
	}
	config.Level = level

	switch format {
	case "", FormatJSON:
	case FormatConsole:
		config.Encoding = FormatConsole
		config.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return config.Build()
}
