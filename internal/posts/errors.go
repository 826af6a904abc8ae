package posts

import "errors"

var (
	ErrNotFound       = errors.New("post not found")
	ErrExists         = errors.New("post already exists")
	ErrInvalidSlug    = errors.New("invalid slug")
	ErrFileIO         = errors.New("post file i/o failed")
	ErrIndexRead      = errors.New("failed to read index")
	ErrIndexParse     = errors.New("failed to parse index")
	ErrIndexSerialize = errors.New("failed to serialize index")
	ErrIndexWrite     = errors.New("failed to write index")
)
