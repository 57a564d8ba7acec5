package dto

type UndoResult struct {
	ExecutionID   string `json:"execution_id"`
	Status        string `json:"status"`
	RestoredCount int    `json:"restored_count"`
	// PendingCount messages could not be restored and stay revertible.
	PendingCount int    `json:"pending_count,omitempty"`
	Message      string `json:"message"`
}

type UndoStatus struct {
	ExecutionID      string `json:"execution_id"`
	Status           string `json:"status"`
	ExpiresInSeconds int    `json:"expires_in_seconds"`
	Description      string `json:"description,omitempty"`
}

type AuthStatus struct {
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email,omitempty"`
}
