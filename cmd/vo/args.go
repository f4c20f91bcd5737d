package main

import (
	"os"
	"strconv"
	"strings"
)

// SplitLineSuffix splits "path:LINE" when path itself does not exist but
// the part before the last colon does. Other arguments are returned as is.
func SplitLineSuffix(arg string) (string, int) {
	if _, err := os.Stat(arg); err == nil {
		return arg, 0
	}

	idx := strings.LastIndexByte(arg, ':')
	if idx <= 0 || idx == len(arg)-1 {
		return arg, 0
	}
	line, err := strconv.Atoi(arg[idx+1:])
	if err != nil || line <= 0 {
		return arg, 0
	}
	if _, err := os.Stat(arg[:idx]); err != nil {
		return arg, 0
	}
	return arg[:idx], line
}
