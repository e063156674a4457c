package daq

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix allows a future algorithm migration.
const (
	DomainEvent   = "trigsync/event/v1"
	DomainPayload = "trigsync/payload/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// PayloadDigest hashes an encoded event buffer.
func PayloadDigest(encoded []byte) string {
	return hashWithDomain(DomainPayload, encoded)
}

// EventID computes the content-addressed ID of a composite event.
// The ID is stable across replays of the same input: it covers the run
// token, run number, event number and the digest of the encoded payload.
func EventID(runToken string, runNumber, eventNumber int, payloadDigest string) (string, error) {
	obj := map[string]any{
		"run_token":      runToken,
		"run_number":     runNumber,
		"event_number":   eventNumber,
		"payload_digest": payloadDigest,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("EventID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}

// MustEventID is like EventID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustEventID(runToken string, runNumber, eventNumber int, payloadDigest string) string {
	id, err := EventID(runToken, runNumber, eventNumber, payloadDigest)
	if err != nil {
		panic(err)
	}
	return id
}
