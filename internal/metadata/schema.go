package metadata

// Well-known targets.
const (
	TargetID3  = "id3"
	TargetNFO  = "nfo"
	TargetPlex = "plex"
)

// requiredFields lists the fields each known target cannot do without.
// Fields marked required in the mapping config are added to these.
var requiredFields = map[string][]string{
	TargetID3:  {"TITLE"},
	TargetNFO:  {"title"},
	TargetPlex: {"title"},
}

func isSchemaRequired(target, field string) bool {
	for _, f := range requiredFields[target] {
		if f == field {
			return true
		}
	}
	return false
}
