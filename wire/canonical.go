package wire

import (
	"strconv"
	"strings"

	"github.com/hushwire/hushwire/crypto"
)

// CanonicalString builds the deterministic pipe-delimited concatenation that
// is HMAC-signed on outbound messages. The field order is fixed by the
// protocol and must never change: id|from|to|ts|iv|payload|key.
func CanonicalString(id, from, to string, ts int64, iv, payload, key string) string {
	return strings.Join([]string{
		id,
		from,
		to,
		strconv.FormatInt(ts, 10),
		iv,
		payload,
		key,
	}, "|")
}

// SignEnvelope computes the envelope signature keyed by the bearer token.
func SignEnvelope(e *Envelope, token string) string {
	canonical := CanonicalString(e.ID, e.From, e.To, e.Ts, e.IV, e.Payload, e.Key)
	return crypto.Sign(canonical, token)
}
