package harvest

import "errors"

var (
	// ErrNoIdentity means no numeric status id could be recovered from an
	// article; the element is skipped.
	ErrNoIdentity = errors.New("post identity not found")

	// ErrRepostUnresolved means the canonical original of a repost could
	// not be fetched; the repost is skipped, never fabricated.
	ErrRepostUnresolved = errors.New("repost original unresolved")
)
