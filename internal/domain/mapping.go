package domain

// CategoryMapping is a persisted correspondence between one source-marketplace
// category label and one target-marketplace category label. At most one
// mapping exists per distinct source category.
type CategoryMapping struct {
	ID               int    `json:"id" db:"id"`
	SourceCategory   string `json:"source_category" db:"source_category"`
	TargetCategory   string `json:"target_category" db:"target_category"`
	TargetSubjectID  int    `json:"target_subject_id" db:"target_subject_id"`
	SourceCategoryID int    `json:"source_category_id" db:"source_category_id"`
}

// AttributeMapping links a source attribute identifier to a target attribute
// identifier. CategoryID nil means the mapping is global; a non-nil value
// scopes it to one CategoryMapping, and category-scoped mappings win over
// global ones during resolution.
type AttributeMapping struct {
	ID                  int    `json:"id" db:"id"`
	SourceAttributeID   string `json:"source_attribute_id" db:"source_attribute_id"`
	SourceAttributeName string `json:"source_attribute_name" db:"source_attribute_name"`
	TargetAttributeID   string `json:"target_attribute_id" db:"target_attribute_id"`
	TargetAttributeName string `json:"target_attribute_name" db:"target_attribute_name"`
	CategoryID          *int   `json:"category_id" db:"category_id"`
}
