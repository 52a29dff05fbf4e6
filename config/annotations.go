package config

// ParseStripAnnotations maps a stripAnnotations value to the inbound and
// outbound strip flags. Absent or unrecognized values mean "both".
func ParseStripAnnotations(value string) (inbound, outbound bool) {
	switch value {
	case "in":
		return true, false
	case "out":
		return false, true
	case "no":
		return false, false
	default:
		return true, true
	}
}
