package commands

import (
	"fmt"
	"strconv"
)

// parseIndices converts 1-based entry numbers from the command line into
// 0-based archive indices.
func parseIndices(args []string) ([]int, error) {
	indices := make([]int, 0, len(args))
	for _, arg := range args {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid entry number %q", arg)
		}
		if n < 1 {
			return nil, fmt.Errorf("invalid entry number %q: numbering starts at 1", arg)
		}
		indices = append(indices, n-1)
	}
	return indices, nil
}
