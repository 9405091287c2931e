package response

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

type responseError struct {
	Code    ErrCode `json:"code"`
	Message string  `json:"message"`
	Err     error   `json:"-"`
}

func (re *responseError) Error() string {
	if re == nil {
		return ""
	}
	return `{"code": ` + strconv.Itoa(int(re.Code)) + `, "message": ` + strconv.Quote(re.Message) + `}`
}

func (re *responseError) GetCode() ErrCode {
	if re == nil {
		return 0
	}
	return re.Code
}

func (re *responseError) Unwrap() error {
	return re.Err
}

// MultiError is the body of every failed api response. Its methods are goroutine safe.
type MultiError struct {
	mtx    sync.Mutex
	errors []error
}

func NewMultiError(err ...error) *MultiError {
	return &MultiError{
		errors: err,
	}
}

func (e *MultiError) Add(err ...error) {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	e.errors = append(e.errors, err...)
}

// Codes of the response errors held, other errors are skipped.
func (e *MultiError) Codes() []ErrCode {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	codes := make([]ErrCode, 0, len(e.errors))
	for _, err := range e.errors {
		if re, ok := err.(*responseError); ok {
			codes = append(codes, re.Code)
		}
	}
	return codes
}

func (e *MultiError) MarshalJSON() ([]byte, error) {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	return json.Marshal(struct {
		Errors []error `json:"errors"`
	}{
		Errors: e.errors,
	})
}

func (e *MultiError) UnmarshalJSON(bytes []byte) error {
	errs := struct {
		Errors []*responseError `json:"errors"`
	}{}
	if err := json.Unmarshal(bytes, &errs); err != nil {
		return err
	}
	for _, err := range errs.Errors {
		e.Add(err)
	}
	return nil
}

func (e *MultiError) Error() string {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	es := make([]string, 0, len(e.errors))
	for _, err := range e.errors {
		es = append(es, err.Error())
	}
	return strings.Join(es, "; ")
}

func generateError(code ErrCode, s ...interface{}) *responseError {
	return &responseError{
		Code:    code,
		Message: fmt.Sprintf(errors[code], s...),
	}
}

func generateErrorWrapper(code ErrCode, err error, s ...interface{}) *responseError {
	re := generateError(code, s...)
	re.Err = err
	return re
}

func ErrResourceNotFound(resource string) *responseError {
	return generateError(ErrCodeResourceNotFound, resource)
}

func ErrMethodNotAllowed(method string) *responseError {
	return generateError(ErrCodeMethodNotAllowed, method)
}

func ErrTooManyJsonPatchOperations(limit int) *responseError {
	return generateError(ErrCodeTooManyJsonPatchOperations, limit)
}

func ErrInvalidResource(resource string, err error) *responseError {
	return generateErrorWrapper(ErrCodeInvalidResource, err, resource, err.Error())
}

func ErrAgentNotConnected(agentId string, err error) *responseError {
	return generateErrorWrapper(ErrCodeAgentNotConnected, err, agentId)
}

func ErrWriteAttribute(attribute string, err error) *responseError {
	return generateErrorWrapper(ErrCodeWriteAttribute, err, attribute, err.Error())
}
