package service

import "encoding/json"

// toPayload converts a typed event payload into the generic map the outbox
// stores. Marshal errors cannot happen for the plain structs involved.
func toPayload(v interface{}) map[string]interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]interface{}{}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]interface{}{}
	}
	return m
}
