package utils

// Custom WebSocket close codes used by the FIX-over-WebSocket transport.
// https://www.rfc-editor.org/rfc/rfc6455#section-7.4.2
const (
	CloseCodeUnknownSession   int = 4001
	CloseCodeGarbledLogon     int = 4002
	CloseCodeFirstNotLogon    int = 4003
	CloseCodeSessionConnected int = 4004
	CloseCodeSessionClosed    int = 4005
)

func IsKnownClientErrorCode(code int) bool {
	return code == CloseCodeUnknownSession ||
		code == CloseCodeGarbledLogon ||
		code == CloseCodeFirstNotLogon ||
		code == CloseCodeSessionConnected ||
		code == CloseCodeSessionClosed
}

var codeNameMap = map[int]string{
	CloseCodeUnknownSession:   "CloseCodeUnknownSession",
	CloseCodeGarbledLogon:     "CloseCodeGarbledLogon",
	CloseCodeFirstNotLogon:    "CloseCodeFirstNotLogon",
	CloseCodeSessionConnected: "CloseCodeSessionConnected",
	CloseCodeSessionClosed:    "CloseCodeSessionClosed",
}

func CloseCodeName(code int) string {
	name, exists := codeNameMap[code]
	if exists {
		return name
	}
	return "UnknownCode"
}
