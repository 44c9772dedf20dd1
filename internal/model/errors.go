package model

import "errors"

var (
	// Account related errors
	ErrAccountNotFound = errors.New("account not found")
	ErrUsernameTaken   = errors.New("username already registered")
	ErrEmailTaken      = errors.New("email already registered")
	ErrAccountInactive = errors.New("account inactive")

	// Profile related errors
	ErrInvalidProfile  = errors.New("invalid profile")
	ErrStudentNotFound = errors.New("student not found")

	// Token related errors
	ErrInvalidToken = errors.New("invalid token")

	// Permission/Access related errors
	ErrUnauthenticated = errors.New("unauthenticated")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)
