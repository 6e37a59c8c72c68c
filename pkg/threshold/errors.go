package threshold

// Error codes for threshold signing.
const (
	CodeTimedOut            = "TIMED_OUT"
	CodeInsufficientSigners = "INSUFFICIENT_SIGNERS"
	CodeAggregationFailed   = "AGGREGATION_FAILED"
	CodeVerifyFailed        = "VERIFY_FAILED"
	CodeMalformedKey        = "MALFORMED_KEY"
	CodeMalformedSignature  = "MALFORMED_SIGNATURE"
	CodeDuplicateSigner     = "DUPLICATE_SIGNER"
	CodeBadThreshold        = "BAD_THRESHOLD"
	CodeNonceConsumed       = "NONCE_CONSUMED"
	CodeUnknownSigner       = "UNKNOWN_SIGNER"
)
