package job

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/plcsnmp/plcsnmp/internal/controller"
)

// Discover enumerates the controller's annotated symbols once and returns the
// polling jobs among them, in enumeration order. Symbols without both
// required annotations are skipped silently; symbols with invalid
// annotations are skipped with a warning. An empty result is not an error.
func Discover(ctx context.Context, lister controller.Lister, logger *slog.Logger) ([]Descriptor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	symbols, err := lister.Symbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate symbols: %w", err)
	}

	descriptors := make([]Descriptor, 0, len(symbols))
	for _, sym := range symbols {
		d, ok, err := FromAttributes(sym.Name, sym.Attributes)
		if !ok {
			continue
		}
		if err != nil {
			logger.Warn("skipping symbol with invalid snmp annotations",
				"symbol", sym.Name,
				"error", err,
			)
			continue
		}
		descriptors = append(descriptors, d)
	}

	return descriptors, nil
}
