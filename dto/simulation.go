package dto

// SimulationReport describes what executing a plan would do. It carries no
// timestamps so repeated simulations of one plan are identical.
type SimulationReport struct {
	PlanID         string   `json:"plan_id"`
	AffectedEmails int      `json:"affected_emails"`
	LabelsCreated  []string `json:"labels_created"`
	APICalls       []string `json:"api_calls"`
	ProviderCalls  int      `json:"provider_calls"`
}
