package tus

import "fmt"

// Upload is the persistable descriptor of one upload session: where it lives
// on the server, how long it is, and how much of it the server has confirmed.
// It is the only state a caller needs to store for crash recovery, and it
// serializes to a plain JSON record.
//
// An Upload is owned by the single transfer loop driving it and must not be
// shared between concurrent sessions. It is mutated only by Advance and
// Reconcile; failed transfer attempts leave it untouched.
type Upload struct {
	// Location is the absolute upload URL assigned by the server at creation.
	// Immutable once set.
	Location string `json:"location"`

	// TotalLength is the declared total byte length of the source, fixed at
	// creation time.
	TotalLength int64 `json:"total_length"`

	// ConfirmedOffset is the number of bytes the server has acknowledged as
	// durably received. The next chunk always starts exactly here.
	ConfirmedOffset int64 `json:"confirmed_offset"`

	// Metadata is the descriptive key-value metadata sent at creation.
	// Never re-sent afterwards.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Advance moves the confirmed offset forward after a server acknowledgment.
// The offset is monotonically non-decreasing; moving it backwards requires an
// explicit Reconcile.
func (u *Upload) Advance(newOffset int64) error {
	if newOffset < u.ConfirmedOffset {
		return fmt.Errorf("advance to %d from %d: %w", newOffset, u.ConfirmedOffset, ErrRegressiveOffset)
	}
	if newOffset > u.TotalLength {
		return fmt.Errorf("advance to %d beyond length %d: %w", newOffset, u.TotalLength, ErrOffsetExceedsLength)
	}
	u.ConfirmedOffset = newOffset
	return nil
}

// Reconcile overwrites the confirmed offset with the server's authoritative
// value. The server may report less than the client believed, e.g. after a
// lost partial write.
func (u *Upload) Reconcile(serverOffset int64) error {
	if serverOffset > u.TotalLength {
		return fmt.Errorf("server offset %d beyond length %d: %w", serverOffset, u.TotalLength, ErrOffsetExceedsLength)
	}
	u.ConfirmedOffset = serverOffset
	return nil
}

// Remaining returns the number of bytes not yet confirmed by the server.
func (u *Upload) Remaining() int64 {
	return u.TotalLength - u.ConfirmedOffset
}

// Complete reports whether every byte of the upload has been confirmed.
func (u *Upload) Complete() bool {
	return u.ConfirmedOffset == u.TotalLength
}
