package codec

import (
	jsoniter "github.com/json-iterator/go"
)

// eventJSONConfig omits the embedded `base.Raw` field (the originating
// types.Log) from every Event's JSON encoding, the same jsoniter trick the
// teacher applies in eventfeed.go to its auto-generated Contract* event
// structs — our events carry Raw for the same reason (event-locator
// access) and it deserves the same opt-out: https://github.com/json-iterator/go/issues/392.
var eventJSONConfig = func() jsoniter.API {
	cfg := jsoniter.Config{}.Froze()
	cfg.RegisterExtension(&omitRawFieldExtension{})
	return cfg
}()

type omitRawFieldExtension struct {
	jsoniter.DummyExtension
}

func (e *omitRawFieldExtension) UpdateStructDescriptor(structDescriptor *jsoniter.StructDescriptor) {
	if binding := structDescriptor.GetField("Raw"); binding != nil {
		binding.ToNames = []string{}
	}
}

// MarshalEventJSON renders a decoded Event's typed fields as JSON, for
// storage alongside its RawEvent row. The originating log is omitted since
// it is already captured by RawEvent's own columns.
func MarshalEventJSON(ev Event) ([]byte, error) {
	return eventJSONConfig.Marshal(ev)
}
