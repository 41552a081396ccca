package database

// Submission kinds recorded in the audit log.
const (
	KindSelection        = "selection"
	KindDeliveryQueue    = "delivery-queue"
	KindMailingList      = "mailing-list"
	KindMediaCollections = "media-collections"
)

// Issue is an archived newsletter.
type Issue struct {
	ID          int64
	PublicID    string
	MonthKey    string
	Message     string
	HTML        string
	MovieCount  int
	ShowCount   int
	GeneratedAt *string
}

// Submission is one selection or push sent to the backend.
type Submission struct {
	ID        int64
	Kind      string
	ItemIDs   []string
	OK        bool
	Message   *string
	CreatedAt *string
}

// Delivery is the outcome of sending an issue to one target.
type Delivery struct {
	ID          int64
	IssueID     int64
	Target      string
	OK          bool
	Message     *string
	DeliveredAt *string
}

// Stats holds aggregate archive counts.
type Stats struct {
	Issues            int
	Submissions       int
	FailedSubmissions int
	Deliveries        int
	FailedDeliveries  int
	LastIssueMonth    string
}
