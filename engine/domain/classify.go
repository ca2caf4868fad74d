package domain

import (
	"strings"
	"unicode"
)

// Object types assigned by Classify.
const (
	TypeEquipment   = "equipment"
	TypePanel       = "panel"
	TypeTransformer = "transformer"
	TypeCable       = "cable"
	TypeSensor      = "sensor"
	TypeController  = "controller"
)

// classRule is checked in order; the first keyword hit wins.
type classRule struct {
	objectType string
	keywords   []string
}

var classRules = []classRule{
	{TypeEquipment, []string{"电机", "泵", "风机", "空调", "设备", "motor", "pump", "fan"}},
	{TypePanel, []string{"柜", "屏", "箱", "配电", "panel", "cabinet", "switchboard"}},
	{TypeTransformer, []string{"变压器", "tr", "transformer"}},
	{TypeCable, []string{"电缆", "桥架", "线路", "cable", "tray"}},
	{TypeSensor, []string{"传感器", "探测器", "sensor", "detector"}},
	{TypeController, []string{"控制器", "plc", "ddc", "controller"}},
}

// Classify derives an object type from a display name. Names that match no
// keyword are equipment.
func Classify(name string) string {
	lower := strings.ToLower(name)
	tokens := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, r := range classRules {
		for _, kw := range r.keywords {
			if matchKeyword(lower, tokens, kw) {
				return r.objectType
			}
		}
	}
	return TypeEquipment
}

// matchKeyword does substring matching, except that short latin keywords
// must equal a whole token ("tr" matches "TR-1" but not "control").
func matchKeyword(lower string, tokens []string, kw string) bool {
	if len(kw) > 3 || !isASCII(kw) {
		return strings.Contains(lower, kw)
	}
	for _, t := range tokens {
		if t == kw || strings.TrimRightFunc(t, unicode.IsDigit) == kw {
			return true
		}
	}
	return false
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// ObjectTypes lists every type Classify can return, plus the synthesized type.
func ObjectTypes() []string {
	out := make([]string, 0, len(classRules)+1)
	for _, r := range classRules {
		out = append(out, r.objectType)
	}
	return append(out, ObjectTypeSystem)
}
