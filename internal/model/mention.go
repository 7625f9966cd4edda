package model

// Role identifies who spoke the utterance a mention was extracted from.
type Role string

const (
	RoleClient   Role = "client"
	RoleOperator Role = "operator"
	RoleUnknown  Role = "unknown"
)

// ParseRole maps a raw role string onto the known set, defaulting to unknown.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleClient, RoleOperator:
		return Role(s)
	default:
		return RoleUnknown
	}
}

// LabelType classifies what kind of claim a mention carries.
type LabelType string

const (
	LabelProblem  LabelType = "problem"
	LabelIdea     LabelType = "idea"
	LabelDelivery LabelType = "delivery"
	LabelSignal   LabelType = "signal"
	LabelOther    LabelType = "other"
)

// ParseLabelType maps a raw label string onto the known set, defaulting to other.
func ParseLabelType(s string) LabelType {
	switch LabelType(s) {
	case LabelProblem, LabelIdea, LabelDelivery, LabelSignal:
		return LabelType(s)
	default:
		return LabelOther
	}
}

// MiscTheme is the residual bucket for mentions the extractor could not
// classify into a named theme. Mentions landing here count against coverage.
const MiscTheme = "misc"

// NoiseCluster is the reserved cluster label for unclustered mentions.
const NoiseCluster = -1

// Mention is one extracted claim tied to a dialog turn. The extractor
// produces the raw fields; pipeline stages fill in the derived ones, each
// stage returning a new slice rather than mutating its input.
type Mention struct {
	ID         string    `json:"id"`
	BatchID    string    `json:"batch_id"`
	DialogID   string    `json:"dialog_id"`
	TurnID     int       `json:"turn_id"`
	Role       Role      `json:"role"`
	LabelType  LabelType `json:"label_type"`
	Theme      string    `json:"theme"`
	Subtheme   string    `json:"subtheme"`
	TextQuote  string    `json:"text_quote"`
	Confidence float64   `json:"confidence"`

	// Derived by the normalizer. QuoteNorm is for comparison only and is
	// never shown in place of TextQuote.
	QuoteNorm       string `json:"quote_norm,omitempty"`
	InvalidEvidence bool   `json:"invalid_evidence,omitempty"`

	// Derived by taxonomy validation at ingest.
	Unclassified bool `json:"unclassified,omitempty"`

	// Derived by the deduplicator.
	IsDuplicate bool   `json:"is_duplicate,omitempty"`
	DuplicateOf string `json:"duplicate_of,omitempty"`

	// Derived by the cluster enricher; nil when enrichment did not run.
	ClusterLabel *int `json:"cluster_label,omitempty"`

	// Derived by the consolidator.
	ProblemID string `json:"problem_id,omitempty"`
}

// Surviving reports whether the mention contributes to downstream counts.
func (m Mention) Surviving() bool {
	return !m.IsDuplicate
}

// RoleKey addresses one utterance in the role/turn index.
type RoleKey struct {
	DialogID string
	TurnID   int
}

// RoleIndex maps dialog turns to the speaking role, as supplied by the
// ingestion collaborator. Needed for the client-only gate check.
type RoleIndex map[RoleKey]Role

// Lookup returns the recorded role for a turn, or unknown when the turn is
// absent from the index.
func (idx RoleIndex) Lookup(dialogID string, turnID int) Role {
	if r, ok := idx[RoleKey{DialogID: dialogID, TurnID: turnID}]; ok {
		return r
	}
	return RoleUnknown
}
