package middleware

import "github.com/and07/mindsync/pkg/ports"

// Middleware allows wrapping a BoardStore to add behavior.
type Middleware func(ports.BoardStore) ports.BoardStore
