package main

import "errors"

// Sentinel errors for command operations
var (
	ErrCasesFailed     = errors.New("test cases failed")
	ErrInvalidOverride = errors.New("invalid command line override")
)
