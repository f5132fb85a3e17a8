package symtab

import (
	"github.com/pkg/errors"
)

var (
	ErrAttach        = errors.New("cannot attach to process")
	ErrSessionClosed = errors.New("session is closed")
	ErrSymNotFound   = errors.New("symbol not found")
)
