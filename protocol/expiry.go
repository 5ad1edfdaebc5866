package protocol

import "time"

// Message lifetimes. A presence ping is worthless after a couple of minutes,
// a stage report is still worth applying after a short outage, and a
// delivered fact waits in the outbox until accounting's broker takes it.
var defaultTTLs = map[string]time.Duration{
	TypeOperatorPresence:    2 * time.Minute,
	TypeJobTransition:       30 * time.Minute,
	TypeJobTransitionResult: 10 * time.Minute,
	TypeJobDelivered:        7 * 24 * time.Hour,
}

// FallbackTTL applies to message types without an entry above.
const FallbackTTL = 10 * time.Minute

// ClockSkew is how far an operator's phone clock may run ahead of the core
// before its messages are treated as expired early.
const ClockSkew = 30 * time.Second

// DefaultTTLFor returns the lifetime stamped on new envelopes of msgType.
func DefaultTTLFor(msgType string) time.Duration {
	if ttl, ok := defaultTTLs[msgType]; ok {
		return ttl
	}
	return FallbackTTL
}

func IsExpired(env *Envelope) bool {
	return expiredAt(env.ExpiresAt, time.Now().UTC())
}

// IsExpiredHeader checks expiry from the routing header alone, before the
// payload is decoded.
func IsExpiredHeader(hdr *RawHeader) bool {
	return expiredAt(hdr.ExpiresAt, time.Now().UTC())
}

// expiredAt treats a zero expiry as "never".
func expiredAt(exp, now time.Time) bool {
	if exp.IsZero() {
		return false
	}
	return now.After(exp.Add(ClockSkew))
}
