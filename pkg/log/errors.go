package log

import "errors"

// Sentinel errors the write-ahead log surfaces.
// DuplicateBegin and UnknownTID are programmer errors the log never retries.
// CorruptLog and IOFailure are fatal during Recover: the caller must refuse
// to open the database rather than run against a log it cannot trust.
// RecordTooLarge rejects a single record outright rather than grow past the
// configured buffer size.
var (
	ErrDuplicateBegin = errors.New("log: transaction already has a live BEGIN record")
	ErrUnknownTID     = errors.New("log: transaction id is not in the live-transaction table")
	ErrCorruptLog     = errors.New("log: malformed or truncated log record")
	ErrIOFailure      = errors.New("log: underlying storage I/O failure")
	ErrRecordTooLarge = errors.New("log: record exceeds the configured buffer size")
)
