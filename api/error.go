package api

import "fmt"

//ErrorType are APIError types
type ErrorType int

//ErrorTypes
const (
	ErrorTypeUser ErrorType = iota
	ErrorTypeServer
	ErrorTypeNotFound
	ErrorTypeDuplicate
)

//Error wraps errors in the API. DuplicateID is set for ErrorTypeDuplicate.
type Error struct {
	Description string
	Type        ErrorType
	Err         error
	DuplicateID string
}

func (e *Error) Error() string {
	switch e.Type {
	case ErrorTypeUser:
		return fmt.Sprintf("User Error: %s: %v", e.Description, e.Err)
	case ErrorTypeNotFound:
		return fmt.Sprintf("Not Found: %s: %v", e.Description, e.Err)
	case ErrorTypeDuplicate:
		return fmt.Sprintf("Duplicate: %s(%s): %v", e.Description, e.DuplicateID, e.Err)
	}
	return fmt.Sprintf("Server Error: %s: %v", e.Description, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
