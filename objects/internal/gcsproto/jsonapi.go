package gcsproto

import jsoniter "github.com/json-iterator/go"

// JSON is the codec used for every JSON body this module sends or parses:
// upload metadata, object attrs, signed policy documents and session
// records.
var JSON = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()
