package models

// CheckRequest asks for two documents to be compared. DocumentB may be
// omitted when source discovery is enabled.
type CheckRequest struct {
	DocumentA Document  `json:"document_a"`
	DocumentB *Document `json:"document_b,omitempty"`
	Algorithm string    `json:"algorithm,omitempty"`
	Record    bool      `json:"record"`
}

// PairwiseRequest scores every unordered pair of Documents. With Dedupe set,
// documents sharing a content identity are scored once.
type PairwiseRequest struct {
	Documents []Document `json:"documents"`
	Algorithm string     `json:"algorithm,omitempty"`
	Dedupe    bool       `json:"dedupe,omitempty"`
}

type AppendRequest struct {
	Document Document `json:"document"`
}

type RestoreRequest struct {
	Key string `json:"key,omitempty"`
}
