// Package errors provides structured, coded error handling.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Battle errors
	CodeBattleEmptyID         Code = "BATTLE_EMPTY_ID"
	CodeBattleUnknown         Code = "BATTLE_UNKNOWN"
	CodeBattleInvalidMove     Code = "BATTLE_INVALID_MOVE"
	CodeBattleInvalidHealth   Code = "BATTLE_INVALID_HEALTH"
	CodeBattleInvalidDeadline Code = "BATTLE_INVALID_DEADLINE"
	CodeBattleViewRewind      Code = "BATTLE_VIEW_REWIND"
	CodeBattleAlreadyTracked  Code = "BATTLE_ALREADY_TRACKED"
	CodeBattleRoundOutOfRange Code = "BATTLE_ROUND_OUT_OF_RANGE"
	CodeBattleInvalidSelfID   Code = "BATTLE_INVALID_SELF_ID"

	// Transport errors
	CodeTransportSubmitMove   Code = "TRANSPORT_SUBMIT_MOVE_FAILED"
	CodeTransportSubmitSettle Code = "TRANSPORT_SUBMIT_SETTLE_FAILED"
	CodeTransportQuerySeed    Code = "TRANSPORT_QUERY_SEED_FAILED"
	CodeTransportQueryBattle  Code = "TRANSPORT_QUERY_BATTLE_FAILED"
	CodeTransportUnavailable  Code = "TRANSPORT_UNAVAILABLE"

	// Storage errors
	CodeNotFound       Code = "NOT_FOUND"
	CodeSnapshotDecode Code = "SNAPSHOT_DECODE_FAILED"
	CodeSnapshotWrite  Code = "SNAPSHOT_WRITE_FAILED"

	// Feed errors
	CodeFeedDecode       Code = "FEED_DECODE_FAILED"
	CodeFeedUnknownEvent Code = "FEED_UNKNOWN_EVENT"
)
