package block

import "errors"

var (
	// ErrUnknownBlock means no descriptor matched the type or any alias.
	ErrUnknownBlock = errors.New("unknown block type")
	// ErrNoAction means the block resolved but no action could be bound.
	ErrNoAction = errors.New("block has no executable action")
	// ErrMissingCredentials is wrapped by actions that lack downstream credentials.
	ErrMissingCredentials = errors.New("missing credentials")
)
