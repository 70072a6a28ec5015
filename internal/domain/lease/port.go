package lease

import "context"

// Analyzer submits one page for the given identity. A refused page comes back
// as *RejectedError; any other error aborts the batch.
type Analyzer interface {
	AnalyzePage(ctx context.Context, identity string, page Page) (PageResponse, error)
}

// ReportArchive keeps published reports and returns their location.
type ReportArchive interface {
	Put(ctx context.Context, identity string, r *Report) (string, error)
}

// NotificationKind of a user-facing message
type NotificationKind string

const (
	NotifyInfo    NotificationKind = "info"
	NotifySuccess NotificationKind = "success"
	NotifyError   NotificationKind = "error"
)

// Notification is a user-facing progress or error message. Page is 1-based
// and zero when the message is not about a single page.
type Notification struct {
	Kind    NotificationKind `json:"type"`
	Message string           `json:"message"`
	Page    int              `json:"page,omitempty"`
	Total   int              `json:"total,omitempty"`
}

// Notifier delivers notifications to whatever front-end is attached.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }
