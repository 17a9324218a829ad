package types

// ForkID identifies a live fork. Handles are unique for the lifetime of a
// backend instance and never reused; the zero value is not a valid handle.
type ForkID uint64

// SnapshotID identifies a snapshot. Ids are issued monotonically by the
// snapshot journal; the zero value is never issued.
type SnapshotID uint64
