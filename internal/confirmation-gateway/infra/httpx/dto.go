package httpx

type WebhookRequest struct {
	OrderID string `json:"order_id"`
	Outcome string `json:"outcome"`
}

type WebhookResponse struct {
	Outcome  string        `json:"outcome"`
	Replayed bool          `json:"replayed"`
	Attempts int           `json:"attempts"`
	Order    OrderResponse `json:"order"`
}

type OrderResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	Version       int64  `json:"version"`
	ProgramTitle  string `json:"program_title,omitempty"`
	Email         string `json:"email,omitempty"`
	Amount        string `json:"amount"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

type ViewResponse struct {
	ID       string           `json:"id"`
	State    string           `json:"state"`
	OrderID  string           `json:"order_id"`
	Desired  string           `json:"desired"`
	Outcome  string           `json:"outcome,omitempty"`
	Replayed bool             `json:"replayed"`
	Order    *OrderResponse   `json:"order,omitempty"`
	Error    *ViewError       `json:"error,omitempty"`
	Attempts AttemptsResponse `json:"attempts"`
	CanRetry bool             `json:"can_retry"`
	Message  string           `json:"message,omitempty"`
}

type ViewError struct {
	Code    string `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// AttemptsResponse lets the page render "N of M attempts".
type AttemptsResponse struct {
	Automatic int  `json:"automatic"`
	Manual    int  `json:"manual"`
	Max       int  `json:"max"`
	Exhausted bool `json:"exhausted"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
