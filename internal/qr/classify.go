package qr

import "strings"

// Content type tags assigned to decoded QR payloads.
const (
	TypeURL     = "url"
	TypeWiFi    = "wifi"
	TypeVCard   = "vcard"
	TypeEmail   = "email"
	TypePhone   = "phone"
	TypeSMS     = "sms"
	TypeCrypto  = "crypto"
	TypeNumeric = "numeric"
	TypeText    = "text"
)

// Types lists every tag Classify can return.
var Types = []string{
	TypeURL, TypeWiFi, TypeVCard, TypeEmail, TypePhone,
	TypeSMS, TypeCrypto, TypeNumeric, TypeText,
}

// Classify maps decoded QR content to a type tag. Rules are checked in
// priority order and the first match wins; only the email heuristic is
// case-insensitive. The email rule is deliberately coarse (any '@'
// together with '.com' matches), kept for compatibility with existing
// stored data.
func Classify(data string) string {
	lower := strings.ToLower(data)
	switch {
	case strings.HasPrefix(data, "http://"),
		strings.HasPrefix(data, "https://"),
		strings.HasPrefix(data, "www."):
		return TypeURL
	case strings.HasPrefix(data, "WIFI:"):
		return TypeWiFi
	case strings.HasPrefix(data, "BEGIN:VCARD"):
		return TypeVCard
	case strings.Contains(lower, "mailto:"),
		strings.Contains(lower, "@") && strings.Contains(lower, ".com"):
		return TypeEmail
	case strings.HasPrefix(data, "tel:"):
		return TypePhone
	case strings.HasPrefix(data, "SMSTO:"):
		return TypeSMS
	case strings.HasPrefix(data, "BITCOIN:"):
		return TypeCrypto
	case isNumeric(data):
		return TypeNumeric
	default:
		return TypeText
	}
}

// isNumeric reports whether data is a plain decimal number: at least one
// digit, at most one '.', nothing else.
func isNumeric(data string) bool {
	digits, dots := 0, 0
	for _, r := range data {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.':
			dots++
			if dots > 1 {
				return false
			}
		default:
			return false
		}
	}
	return digits > 0
}

// WiFiNetwork is the parsed form of a WIFI: payload. An empty Password
// means the payload carried none.
type WiFiNetwork struct {
	SSID     string `json:"ssid"`
	Security string `json:"security"`
	Password string `json:"password,omitempty"`
}

// ParseWiFi parses a payload of the form WIFI:S:<ssid>;T:<security>;P:<password>;
// Malformed segments are skipped, unknown keys ignored, missing fields
// keep their defaults. Never fails.
func ParseWiFi(data string) WiFiNetwork {
	network := WiFiNetwork{SSID: "Unknown", Security: "WPA"}
	if len(data) < 5 {
		return network
	}
	for _, part := range strings.Split(data[5:], ";") {
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		switch key {
		case "S":
			network.SSID = value
		case "T":
			network.Security = value
		case "P":
			network.Password = value
		}
	}
	return network
}
