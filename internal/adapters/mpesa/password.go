package mpesa

import (
	"encoding/base64"
	"time"
)

const timestampLayout = "20060102150405"

// eat is East Africa Time. Daraja validates the password against its own
// clock in this zone, so the timestamp must be rendered here too.
var eat = time.FixedZone("EAT", 3*60*60)

// Timestamp renders t the way the push request and password expect
func Timestamp(t time.Time) string {
	return t.In(eat).Format(timestampLayout)
}

// Password is base64(shortcode + passkey + timestamp). It must be rebuilt
// for every request with the same timestamp that is sent alongside it.
func Password(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}
