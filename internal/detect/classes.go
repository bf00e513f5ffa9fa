package detect

import "strings"

// CanonicalClasses are the vehicle classes counting always reports,
// even when a bucket saw none of them.
var CanonicalClasses = []string{"car", "bus", "truck", "motorcycle"}

// droppedClasses are mapping targets that mean "discard this label".
var droppedClasses = map[string]struct{}{
	"":       {},
	"ignore": {},
	"none":   {},
	"null":   {},
}

// MapClass canonicalizes a raw detector label through the configured
// class map. Labels are matched case-insensitively with surrounding
// whitespace ignored. The second return is false when the label is
// unknown or explicitly mapped to a drop marker.
func MapClass(label string, classMap map[string]string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(label))
	mapped, ok := classMap[key]
	if !ok {
		return "", false
	}
	target := strings.ToLower(strings.TrimSpace(mapped))
	if _, dropped := droppedClasses[target]; dropped {
		return "", false
	}
	return target, true
}

// Normalize maps every detection class through the class map, dropping
// detections whose label does not canonicalize. Input order is kept.
func Normalize(detections []Detection, classMap map[string]string) []Detection {
	normalized := make([]Detection, 0, len(detections))
	for _, det := range detections {
		class, ok := MapClass(det.Class, classMap)
		if !ok {
			continue
		}
		det.Class = class
		normalized = append(normalized, det)
	}
	return normalized
}
