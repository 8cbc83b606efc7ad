package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// CanonicalPayload serializes the hashable fields of an entry.
//
// The serialization is JSON with the top-level keys sorted
// lexicographically. Only the top level is sorted; nested objects keep
// their declared field order. Hash-compatibility with previously recorded
// chains depends on sorting at exactly this depth, so the object is
// assembled by hand rather than through a canonical-JSON library.
//
// hash, signatures and status are excluded: they are the only fields
// allowed to change after an entry has been chained.
func CanonicalPayload(e *Entry) ([]byte, error) {
	fields := make(map[string]json.RawMessage, 12)
	put := func(key string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", key, err)
		}
		fields[key] = b
		return nil
	}

	if err := put("id", e.ID); err != nil {
		return nil, err
	}
	if err := put("timestamp", e.Timestamp); err != nil {
		return nil, err
	}
	if err := put("grantCycleId", e.GrantCycleID); err != nil {
		return nil, err
	}
	if err := put("transactionId", e.TransactionID); err != nil {
		return nil, err
	}
	if err := put("account", e.Account); err != nil {
		return nil, err
	}
	if err := put("amount", e.Amount); err != nil {
		return nil, err
	}
	if err := put("currency", e.Currency); err != nil {
		return nil, err
	}
	if err := put("entryType", e.EntryType); err != nil {
		return nil, err
	}
	if err := put("description", e.Description); err != nil {
		return nil, err
	}
	if e.Metadata == nil {
		fields["metadata"] = json.RawMessage("{}")
	} else if err := put("metadata", e.Metadata); err != nil {
		return nil, err
	}
	if e.PreviousHash != "" {
		if err := put("previousHash", e.PreviousHash); err != nil {
			return nil, err
		}
	}
	if e.ZKProof != nil {
		if err := put("zkProof", e.ZKProof); err != nil {
			return nil, err
		}
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(fields[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// HashEntry computes the hex-encoded SHA-256 of the entry's canonical
// payload.
func HashEntry(e *Entry) (string, error) {
	payload, err := CanonicalPayload(e)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// MerkleRoot computes the submission digest of a transaction: the SHA-256
// of the concatenation of its entry hashes in chain order.
func MerkleRoot(entries []*Entry) string {
	h := sha256.New()
	for _, e := range entries {
		io.WriteString(h, e.Hash) //nolint:errcheck
	}
	return hex.EncodeToString(h.Sum(nil))
}
