package connector

import "fmt"

// CallError is returned by the connectors when the execution client rejects
// or fails an eth_call.
type CallError struct {
	Message string
	Method  string
	URL     string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("Node: %s, Method: %s, Message: %s", e.URL, e.Method, e.Message)
}

func wrapError(e error, method, url string) error {
	if e == nil {
		return nil
	}
	return &CallError{
		Message: e.Error(),
		Method:  method,
		URL:     url,
	}
}
