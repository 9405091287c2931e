package response

type ErrCode int

const (
	_                                 ErrCode = 10000 + iota
	ErrCodeMalformedJSON                      // 10001
	ErrCodeRequestBody                        // 10002
	ErrCodeResourceNotFound                   // 10003
	ErrCodeMethodNotAllowed                   // 10004
	ErrCodeTooManyJsonPatchOperations         // 10005
	ErrCodeInvalidResource                    // 10006
	ErrCodeAgentNotConnected                  // 10007
	ErrCodeWriteAttribute                     // 10008
)

// !!! IMPORTANT PLEASE READ FIRST !!!
// You SHOULD add new code at the end, and append comment of number
// Meanwhile, the corresponding error message SHOULD be appended in response.errors
// The order MUST be consistent between them
