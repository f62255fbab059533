package errors

import "encoding/json"

// ErrorResponse is the flat JSON form of an error.
// The wrapped cause chain is not included.
type ErrorResponse struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Classification string                 `json:"classification"`
	Context        map[string]interface{} `json:"context,omitempty"`
}

// ToJSON converts any error to an ErrorResponse.
// Errors without a code use CodeUnknown and their full Error() text.
// Returns nil if err is nil.
func ToJSON(err error) *ErrorResponse {
	if err == nil {
		return nil
	}

	resp := &ErrorResponse{
		Code:           string(GetCode(err)),
		Message:        err.Error(),
		Classification: string(GetClassification(err)),
	}

	var coded Error
	if As(err, &coded) {
		resp.Message = coded.Message()
		resp.Context = coded.Context()
	}
	return resp
}

// MarshalJSON renders the error as an ErrorResponse.
func (e *codedError) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(&ErrorResponse{
		Code:           string(e.code),
		Message:        e.message,
		Classification: string(e.classification),
		Context:        e.context,
	})
	if err != nil {
		return nil, Wrap(err, CodeInternal, "failed to marshal error response")
	}
	return data, nil
}
