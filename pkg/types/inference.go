package types

import "time"

// InferenceStatus is the lifecycle state of an inference.
type InferenceStatus string

const (
	InferenceActive  InferenceStatus = "active"
	InferenceExpired InferenceStatus = "expired"
)

// InferenceTTL is how long a generated inference stays active before the
// maintenance cleanup pass marks it expired.
const InferenceTTL = 30 * 24 * time.Hour

// Inference is a derived, expiring fact about entities that no single
// note states directly ("X and Y are collaborating"). Inferences are
// deduplicated by exact text per owner and soft-expired, never deleted.
type Inference struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`

	Type            string   `json:"inference_type"`
	SubjectEntities []string `json:"subject_entities"`
	Text            string   `json:"text"`
	Confidence      float64  `json:"confidence"`

	// SupportingEvidence is the reasoner's free-text justification.
	SupportingEvidence string `json:"supporting_evidence,omitempty"`

	Status    InferenceStatus `json:"status"`
	ExpiresAt time.Time       `json:"expires_at"`
	CreatedAt time.Time       `json:"created_at"`
}
