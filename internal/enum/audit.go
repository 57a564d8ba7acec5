package enum

import "strings"

type AuditEventType string

const (
	AuditTokenValidation AuditEventType = "token_validation"
	AuditScanRun         AuditEventType = "scan_run"
	AuditPlanGenerated   AuditEventType = "plan_generated"
	AuditSimulationRun   AuditEventType = "simulation_run"
	AuditExecution       AuditEventType = "execution"
	AuditUndo            AuditEventType = "undo"
)

func (t AuditEventType) String() string {
	return string(t)
}

func (t AuditEventType) Valid() bool {
	switch t {
	case AuditTokenValidation, AuditScanRun, AuditPlanGenerated, AuditSimulationRun, AuditExecution, AuditUndo:
		return true
	}
	return false
}

type AuditOutcome string

const (
	OutcomeSuccess  AuditOutcome = "success"
	OutcomeFailure  AuditOutcome = "failure"
	OutcomePartial  AuditOutcome = "partial"
	OutcomeRejected AuditOutcome = "rejected"
)

func (o AuditOutcome) String() string {
	return string(o)
}

// Category is a Gmail inbox tab.
type Category string

const (
	CategoryPrimary    Category = "primary"
	CategoryPromotions Category = "promotions"
	CategoryUpdates    Category = "updates"
	CategorySocial     Category = "social"
	CategoryForums     Category = "forums"
)

func (c Category) String() string {
	return string(c)
}

// LabelID returns the Gmail system label backing the category.
func (c Category) LabelID() string {
	switch c {
	case CategoryPromotions:
		return "CATEGORY_PROMOTIONS"
	case CategoryUpdates:
		return "CATEGORY_UPDATES"
	case CategorySocial:
		return "CATEGORY_SOCIAL"
	case CategoryForums:
		return "CATEGORY_FORUMS"
	case CategoryPrimary:
		return "CATEGORY_PERSONAL"
	}
	return ""
}

// DisplayName is the tab name shown in Gmail.
func (c Category) DisplayName() string {
	if c == "" {
		return ""
	}
	return strings.ToUpper(string(c[:1])) + string(c[1:])
}

var Categories = []Category{CategoryPromotions, CategoryUpdates, CategorySocial, CategoryForums, CategoryPrimary}

func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// CategoryFromLabel maps a CATEGORY_* label id back to its category.
func CategoryFromLabel(labelID string) (Category, bool) {
	for _, c := range Categories {
		if c.LabelID() == labelID {
			return c, true
		}
	}
	return "", false
}
