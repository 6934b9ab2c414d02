package agent

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	errMissingName = errors.New(`missing required argument "name"`)
	errMissingText = errors.New(`missing required argument "text"`)
)

// Tool argument extraction. The model sends arguments as loose JSON, so
// numbers arrive as float64 and ids sometimes as strings; these helpers
// normalize without being picky about which numeric shape was used.

func intArg(input map[string]any, key string) (int, bool) {
	v, ok := input[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

func requiredIntArg(input map[string]any, key string) (int, error) {
	n, ok := intArg(input, key)
	if !ok {
		return 0, fmt.Errorf("missing or invalid integer argument %q", key)
	}
	return n, nil
}

func stringArg(input map[string]any, key string) string {
	if v, ok := input[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func intSliceArg(input map[string]any, key string) []int {
	raw, ok := input[key].([]any)
	if !ok {
		return nil
	}
	var ids []int
	for _, v := range raw {
		switch n := v.(type) {
		case float64:
			ids = append(ids, int(n))
		case string:
			if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
				ids = append(ids, i)
			}
		}
	}
	return ids
}
