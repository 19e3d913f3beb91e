package tools

// phoneClassTools is the fixed allow-list of tools that drive the single
// physical device surface. Calls to these tools must never run concurrently
// with each other: the device can only accept one input at a time.
var phoneClassTools = map[string]bool{
	"adb_tap":        true,
	"adb_swipe":      true,
	"adb_type":       true,
	"adb_keyevent":   true,
	"adb_open_app":   true,
	"adb_screenshot": true,
	"adb_back":       true,
	"adb_home":       true,
}

// IsPhoneClass reports whether the named tool is a phone-class tool.
func IsPhoneClass(name string) bool {
	return phoneClassTools[name]
}

// PhoneClassTools returns the allow-list of phone-class tool names.
func PhoneClassTools() []string {
	out := make([]string, 0, len(phoneClassTools))
	for name := range phoneClassTools {
		out = append(out, name)
	}
	return out
}
