package policy

import (
	"fmt"

	"go.uber.org/zap"
)

// New builds the named controller policy. graphFilePath is only
// consulted for "from_file".
func New(name, graphFilePath string, logger *zap.Logger) (Policy, error) {
	switch name {
	case "from_file":
		return NewFromFile(graphFilePath, logger.Named("from_file")), nil
	case "hw_only":
		return NewHwOnly(logger.Named("hw_only")), nil
	case "noop", "no_op", "":
		return NoOp{}, nil
	default:
		return nil, fmt.Errorf("unknown controller policy %q", name)
	}
}
