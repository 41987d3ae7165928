package server

import "errors"

var (
	ErrServerClosed         = errors.New("server is closed")
	ErrServerNotListening   = errors.New("server is not listening")
	ErrServerAlreadyRunning = errors.New("server is already running")
	ErrUnauthorized         = errors.New("unauthorized")
)
