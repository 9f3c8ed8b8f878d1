package main

// Exit codes shared by all commands.
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError = 2 // Configuration error (not a project, invalid settings)
	ExitDataError   = 3 // Data error (source integrity, state machine violation)
	ExitBlocked     = 4 // Operation blocked by records in preceding states
)
