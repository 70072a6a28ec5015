package session

import "errors"

var ErrNotInitialized = errors.New("session not initialized")
