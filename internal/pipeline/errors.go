package pipeline

// Stable diagnostic codes. Codes identify an error class and never change
// meaning; clients key quick-fix and suppression behavior off them.
const (
	ErrRedefinitionOfMethod         = 4010
	ErrRedefinitionOfParents        = 5012
	ErrDuplicateVariableDeclaration = 5013
	ErrMethodDoesNotExist           = 7003
	ErrNotEnoughArguments           = 7004
	ErrTooManyArguments             = 7005
)
