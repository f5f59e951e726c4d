package agent

import "encoding/json"

// marshalArgs JSON-encodes a tool call's parsed argument map back into the
// wire-level string form protocol.ToolCall expects.
func marshalArgs(args map[string]any) (string, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
