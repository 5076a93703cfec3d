// Package connectors pulls supplier mail out of a mailbox and turns
// price-list attachments into pending uploads.
package connectors

import "github.com/Fanfaster01/nota-debito-app-sub000/internal"

type MailConnector interface {
	FetchInbox(mailbox string, max int) ([]internal.FetchedMailMessage, error)
}
