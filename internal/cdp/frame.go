package cdp

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var emptyObject = json.RawMessage(`{}`)

// CommandError is the "error" member of a CDP response.
type CommandError struct {
	Method  string
	Code    int64
	Message string
	Data    string
}

func (e *CommandError) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("cdp %s: %s (code %d): %s", e.Method, e.Message, e.Code, e.Data)
	}
	return fmt.Sprintf("cdp %s: %s (code %d)", e.Method, e.Message, e.Code)
}

// EncodeCommand renders {"id":..,"method":..,"params":..}. Empty params encode as {}.
func EncodeCommand(id uint64, method string, params json.RawMessage) ([]byte, error) {
	frame, err := sjson.SetBytes([]byte(`{}`), "id", id)
	if err != nil {
		return nil, err
	}
	if frame, err = sjson.SetBytes(frame, "method", method); err != nil {
		return nil, err
	}
	if len(params) == 0 {
		params = emptyObject
	}
	if !gjson.ValidBytes(params) {
		return nil, fmt.Errorf("cdp %s: params are not valid JSON", method)
	}
	return sjson.SetRawBytes(frame, "params", params)
}

// matchResponse inspects one inbound frame. matched is false for events,
// responses to other ids and anything that is not a JSON object.
func matchResponse(frame []byte, id uint64, method string) (result json.RawMessage, matched bool, err error) {
	if !gjson.ValidBytes(frame) {
		return nil, false, nil
	}
	root := gjson.ParseBytes(frame)
	if !root.IsObject() {
		return nil, false, nil
	}
	idField := root.Get("id")
	if idField.Type != gjson.Number || idField.Raw != strconv.FormatUint(id, 10) {
		return nil, false, nil
	}

	if errField := root.Get("error"); errField.Exists() {
		cmdErr := &CommandError{
			Method:  method,
			Code:    errField.Get("code").Int(),
			Message: errField.Get("message").String(),
			Data:    errField.Get("data").String(),
		}
		if cmdErr.Message == "" {
			cmdErr.Message = errField.Raw
		}
		return nil, true, cmdErr
	}

	res := root.Get("result")
	if !res.Exists() || res.Type == gjson.Null {
		return emptyObject, true, nil
	}
	return json.RawMessage(res.Raw), true, nil
}
