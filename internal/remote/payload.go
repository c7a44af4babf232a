package remote

// metadataAllowList maps accepted input field names to their wire names.
// Client-side records use camelCase, the backend uses snake_case; both
// spellings are accepted. Content is deliberately absent: document bodies
// move through the realtime channel and the content push endpoint only.
var metadataAllowList = map[string]string{
	"title":      "title",
	"folderId":   "folder_id",
	"folder_id":  "folder_id",
	"starred":    "is_starred",
	"isStarred":  "is_starred",
	"is_starred": "is_starred",
}

// MetadataPayload projects arbitrary update fields onto the REST metadata
// payload. Unknown fields, including content, are dropped.
func MetadataPayload(fields map[string]interface{}) map[string]interface{} {
	payload := make(map[string]interface{})
	for key, value := range fields {
		if wire, ok := metadataAllowList[key]; ok {
			payload[wire] = value
		}
	}
	return payload
}
