package response

var errors = map[ErrCode]string{
	ErrCodeMalformedJSON:              "The JSON you provided was not well-formed or did not validate against our published format.",
	ErrCodeRequestBody:                "Request body error",
	ErrCodeResourceNotFound:           "Resource %s not found.",
	ErrCodeMethodNotAllowed:           "Method %s is not allowed.",
	ErrCodeTooManyJsonPatchOperations: "The allowed number of json patch operations is %d.",
	ErrCodeInvalidResource:            "Invalid %s: %s",
	ErrCodeAgentNotConnected:          "Agent %s is not connected.",
	ErrCodeWriteAttribute:             "Failed to write attribute %s: %s",
}

// !!! IMPORTANT PLEASE READ FIRST !!!
// You SHOULD add new code at the end of enum firstly.

var ErrMalformedJSON = &responseError{
	Code:    ErrCodeMalformedJSON,
	Message: errors[ErrCodeMalformedJSON],
}

var ErrRequestBody = &responseError{
	Code:    ErrCodeRequestBody,
	Message: errors[ErrCodeRequestBody],
}
