package dto

import "time"

type MailboxProfile struct {
	EmailAddress  string
	MessagesTotal int
	ThreadsTotal  int
}

type LabelCount struct {
	Total  int
	Unread int
}

// MessageMetadata is the header subset the scanner reads for one message.
type MessageMetadata struct {
	ID                  string
	From                string
	Date                time.Time
	ListUnsubscribe     string
	ListUnsubscribePost string
	LabelIDs            []string
}

// MessagePage is one page of a message id listing.
type MessagePage struct {
	IDs           []string
	NextPageToken string
}
