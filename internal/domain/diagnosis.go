package domain

// Diagnosis is the human-readable explanation attached to a failed transaction.
type Diagnosis struct {
	TransactionID           string      `bson:"transaction_id" json:"transaction_id"`
	FailureType             FailureType `bson:"failure_type,omitempty" json:"failure_type,omitempty"`
	Diagnosis               string      `bson:"diagnosis" json:"diagnosis"`
	UserGuidance            string      `bson:"user_guidance" json:"user_guidance"`
	TechnicalDetails        string      `bson:"technical_details" json:"technical_details"`
	ResolutionSteps         []string    `bson:"resolution_steps" json:"resolution_steps"`
	EstimatedResolutionTime string      `bson:"estimated_resolution_time" json:"estimated_resolution_time"`
	ContactSupport          bool        `bson:"contact_support" json:"contact_support"`
	RetryRecommended        bool        `bson:"retry_recommended" json:"retry_recommended"`
	ConfidenceScore         float64     `bson:"confidence_score" json:"confidence_score"`
}
