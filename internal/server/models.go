package server

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// AuthSignupRequest represents the signup payload.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthLoginRequest represents the login payload.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// ProfileResponse returns the current authenticated user.
type ProfileResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// DocumentResponse is the API view of a document row.
type DocumentResponse struct {
	ID            string `json:"id"`
	OriginalName  string `json:"original_name"`
	FileName      string `json:"file_name"`
	MimeType      string `json:"mime_type"`
	FileSize      int64  `json:"file_size"`
	Status        string `json:"status"`
	ExtractedText string `json:"extracted_text,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// UploadResponse reports the outcome of a multi-file upload. Failures for
// individual files are listed without aborting the rest of the batch.
type UploadResponse struct {
	Success   bool               `json:"success"`
	Documents []DocumentResponse `json:"documents"`
	Errors    []UploadFileError  `json:"errors,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// UploadFileError names one file that could not be stored.
type UploadFileError struct {
	FileName string `json:"file_name"`
	Reason   string `json:"reason"`
}

// StartOCRRequest asks for extraction of one uploaded document.
type StartOCRRequest struct {
	DocumentID string `json:"documentId"`
}

// StartOCRResponse reports whether the workflow run was accepted.
type StartOCRResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// OCRCallbackRequest carries extraction results posted back by the workflow.
type OCRCallbackRequest struct {
	Status string `json:"status"`
	Text   string `json:"text,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ChatMessageRequest is the streaming-proxy input.
type ChatMessageRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ChatTaskResponse is the non-streaming chat reply shape.
type ChatTaskResponse struct {
	TaskID         string `json:"task_id"`
	ConversationID string `json:"conversation_id"`
}

// NotificationResponse is the API view of a notification. A single read
// boolean is exposed; the storage column name never leaks past this point.
type NotificationResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at"`
}

// MarkNotificationRequest marks one notification read.
type MarkNotificationRequest struct {
	ID string `json:"id"`
}

// FAQRequest creates or updates a FAQ entry.
type FAQRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Category string `json:"category,omitempty"`
}

// FAQResponse is the API view of a FAQ entry.
type FAQResponse struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Category string `json:"category,omitempty"`
}

// TicketRequest files a support ticket.
type TicketRequest struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// TicketResponse is the API view of a support ticket.
type TicketResponse struct {
	ID        string `json:"id"`
	Reference string `json:"reference"`
	Subject   string `json:"subject"`
	Message   string `json:"message"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// TicketStatusRequest transitions a ticket's status.
type TicketStatusRequest struct {
	Status string `json:"status"`
}

// UserResponse is the admin view of an account.
type UserResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

// UserRoleRequest changes an account role.
type UserRoleRequest struct {
	Role string `json:"role"`
}

// AnalyticsResponse aggregates admin dashboard counts.
type AnalyticsResponse struct {
	Users               int64            `json:"users"`
	Documents           map[string]int64 `json:"documents"`
	OpenTickets         int64            `json:"open_tickets"`
	UnreadNotifications int64            `json:"unread_notifications"`
}

// IDResponse is a generic id response wrapper.
type IDResponse struct {
	ID string `json:"id"`
}
