package models

import (
	"encoding/json"
	"fmt"
)

// ProvenanceKind discriminates the known connector shapes that produce
// transactions. Unknown kinds are preserved as opaque payloads so data from
// newer connectors survives a round trip through this engine.
type ProvenanceKind string

const (
	ProvenanceERP    ProvenanceKind = "erp"
	ProvenanceBank   ProvenanceKind = "bank"
	ProvenanceCRM    ProvenanceKind = "crm"
	ProvenanceOpaque ProvenanceKind = "opaque"
)

// Provenance is a tagged union over the connector-specific metadata attached
// to imported transactions. Exactly one of the variant fields is set,
// matching Kind.
type Provenance struct {
	Kind   ProvenanceKind  `json:"kind"`
	ERP    *ERPProvenance  `json:"erp,omitempty"`
	Bank   *BankProvenance `json:"bank,omitempty"`
	CRM    *CRMProvenance  `json:"crm,omitempty"`
	Opaque json.RawMessage `json:"opaque,omitempty"`
}

// ERPProvenance carries metadata from ERP sync connectors
type ERPProvenance struct {
	System     string `json:"system"`
	DocumentID string `json:"documentId,omitempty"`
	OrderCode  string `json:"orderCode,omitempty"`
}

// BankProvenance carries metadata from bank-statement fetchers
type BankProvenance struct {
	Institution string `json:"institution"`
	AccountID   string `json:"accountId,omitempty"`
	StatementID string `json:"statementId,omitempty"`
}

// CRMProvenance carries metadata from CRM sync connectors
type CRMProvenance struct {
	System     string `json:"system"`
	ContactID  string `json:"contactId,omitempty"`
	PipelineID string `json:"pipelineId,omitempty"`
}

// IsZero reports whether no provenance was recorded.
func (p Provenance) IsZero() bool {
	return p.Kind == ""
}

// Validate checks that the variant matches the declared kind.
func (p Provenance) Validate() error {
	switch p.Kind {
	case "":
		return nil
	case ProvenanceERP:
		if p.ERP == nil {
			return fmt.Errorf("provenance kind %s requires an erp payload", p.Kind)
		}
	case ProvenanceBank:
		if p.Bank == nil {
			return fmt.Errorf("provenance kind %s requires a bank payload", p.Kind)
		}
	case ProvenanceCRM:
		if p.CRM == nil {
			return fmt.Errorf("provenance kind %s requires a crm payload", p.Kind)
		}
	case ProvenanceOpaque:
		if len(p.Opaque) == 0 {
			return fmt.Errorf("provenance kind %s requires an opaque payload", p.Kind)
		}
	default:
		return fmt.Errorf("unknown provenance kind: %s", p.Kind)
	}
	return nil
}

// ParseProvenance decodes serialized provenance. Payloads with an unknown or
// missing kind degrade to the opaque variant instead of failing, so imports
// never reject a transaction over metadata shape.
func ParseProvenance(data []byte) (Provenance, error) {
	if len(data) == 0 {
		return Provenance{}, nil
	}

	var p Provenance
	if err := json.Unmarshal(data, &p); err != nil {
		return Provenance{}, fmt.Errorf("invalid provenance payload: %w", err)
	}

	if err := p.Validate(); err != nil {
		// Preserve the raw payload rather than dropping it.
		return Provenance{Kind: ProvenanceOpaque, Opaque: json.RawMessage(data)}, nil
	}

	return p, nil
}

// Encode serializes the provenance for storage. Zero provenance encodes as
// nil.
func (p Provenance) Encode() ([]byte, error) {
	if p.IsZero() {
		return nil, nil
	}
	return json.Marshal(p)
}
