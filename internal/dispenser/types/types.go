package types

import "strings"

// Recipient identifies who a credential is distributed to.  ID is the chat
// platform's stable user id; Label is the display name captured at request
// time for the audit log.
type Recipient struct {
	ID    string
	Label string
}

// Credential is one distributable credential string, conventionally
// "identifier:secret".  Secret is empty when the raw string has no separator.
type Credential struct {
	Raw        string
	Identifier string
	Secret     string
}

// ParseCredential splits a raw credential on the first ":".  Strings without
// a separator become identifier-only credentials.
func ParseCredential(raw string) Credential {
	c := Credential{Raw: raw, Identifier: raw}
	if i := strings.Index(raw, ":"); i >= 0 {
		c.Identifier = raw[:i]
		c.Secret = raw[i+1:]
	}
	return c
}

// Distribution is the outcome of a successful generate or committed send.
type Distribution struct {
	BatchID     string
	Credentials []Credential
	Remaining   int
}

// IngestResult reports a stock ingestion.
type IngestResult struct {
	Added int
	Total int
}

// RestockResult reports a restock: how many entries went back to the front
// of the ledger and the resulting stock size.
type RestockResult struct {
	Restored  int
	StockSize int
}
