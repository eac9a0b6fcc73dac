package connectors

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/common"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/models"
)

// MailConnector polls an IMAP mailbox and turns unseen messages into
// documents. The sender address is matched against entity external refs;
// messages from unknown senders are left seen but unattached.
type MailConnector struct {
	config  *common.MailConfig
	storage interfaces.StorageManager
	queue   interfaces.QueueManager
	logger  arbor.ILogger
}

// NewMailConnector creates the mail connector
func NewMailConnector(cfg *common.MailConfig, storage interfaces.StorageManager, queue interfaces.QueueManager, logger arbor.ILogger) *MailConnector {
	return &MailConnector{
		config:  cfg,
		storage: storage,
		queue:   queue,
		logger:  logger,
	}
}

// Poll connects to the mailbox, imports every unseen message that maps to a
// known entity, and marks processed messages as seen. Returns the number of
// documents created.
func (m *MailConnector) Poll(ctx context.Context) (int, error) {
	if !m.config.Enabled {
		return 0, nil
	}

	c, err := m.connect()
	if err != nil {
		return 0, err
	}
	defer c.Logout()

	mailbox := m.config.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if _, err := c.Select(mailbox, false); err != nil {
		return 0, fmt.Errorf("select mailbox %s: %w", mailbox, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := c.Search(criteria)
	if err != nil {
		return 0, fmt.Errorf("search unseen messages: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(ids...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, section.FetchItem()}

	messages := make(chan *imap.Message, len(ids))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqSet, items, messages)
	}()

	created := 0
	processed := new(imap.SeqSet)
	for msg := range messages {
		ok, err := m.importMessage(ctx, msg, section)
		if err != nil {
			m.logger.Warn().
				Err(err).
				Int64("seq", int64(msg.SeqNum)).
				Msg("Failed to import mail message")
			continue
		}
		processed.AddNum(msg.SeqNum)
		if ok {
			created++
		}
	}
	if err := <-done; err != nil {
		return created, fmt.Errorf("fetch messages: %w", err)
	}

	if !processed.Empty() {
		item := imap.FormatFlagsOp(imap.AddFlags, true)
		flags := []interface{}{imap.SeenFlag}
		if err := c.Store(processed, item, flags, nil); err != nil {
			return created, fmt.Errorf("mark messages seen: %w", err)
		}
	}

	if created > 0 {
		m.logger.Info().
			Int("documents", created).
			Int("messages", len(ids)).
			Msg("Mailbox polled")
	}
	return created, nil
}

func (m *MailConnector) connect() (*client.Client, error) {
	var c *client.Client
	var err error
	if strings.HasSuffix(m.config.Server, ":143") {
		c, err = client.Dial(m.config.Server)
	} else {
		c, err = client.DialTLS(m.config.Server, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", m.config.Server, err)
	}
	if err := c.Login(m.config.Username, m.config.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	return c, nil
}

// importMessage creates a document from one message when the sender maps to
// an entity. Returns false when no entity claims the sender address.
func (m *MailConnector) importMessage(ctx context.Context, msg *imap.Message, section *imap.BodySectionName) (bool, error) {
	if msg.Envelope == nil || len(msg.Envelope.From) == 0 {
		return false, fmt.Errorf("message has no sender envelope")
	}
	from := msg.Envelope.From[0].Address()

	entity, err := m.entityForSender(ctx, from)
	if err != nil {
		return false, err
	}
	if entity == nil {
		m.logger.Debug().
			Str("from", from).
			Msg("No entity matches sender, skipping message")
		return false, nil
	}

	body, err := extractTextBody(msg.GetBody(section))
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(body) == "" {
		return false, nil
	}

	title := msg.Envelope.Subject
	if title == "" {
		title = fmt.Sprintf("Mail from %s", from)
	}

	doc := models.NewDocument(entity.ID, title)
	doc.Body = body
	doc.ContentType = "text/plain"
	if err := m.storage.Documents().SaveDocument(ctx, doc); err != nil {
		return false, fmt.Errorf("save document: %w", err)
	}

	task, err := models.NewIngestDocumentTask(doc.ID)
	if err != nil {
		return false, fmt.Errorf("build ingest task: %w", err)
	}
	if err := m.queue.Enqueue(ctx, task); err != nil {
		return false, fmt.Errorf("enqueue ingest task: %w", err)
	}
	return true, nil
}

// entityForSender looks the address up across all workspaces by external ref
func (m *MailConnector) entityForSender(ctx context.Context, address string) (*models.Entity, error) {
	workspaces, err := m.storage.Workspaces().ListWorkspaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	for _, ws := range workspaces {
		entity, err := m.storage.Entities().GetEntityByExternalRef(ctx, ws.ID, address)
		if err == nil && entity != nil {
			return entity, nil
		}
	}
	return nil, nil
}

// extractTextBody reads the first text/plain inline part of the message
func extractTextBody(literal imap.Literal) (string, error) {
	if literal == nil {
		return "", fmt.Errorf("message has no body section")
	}
	mr, err := mail.CreateReader(literal)
	if err != nil {
		return "", fmt.Errorf("parse message: %w", err)
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read message part: %w", err)
		}
		if h, ok := p.Header.(*mail.InlineHeader); ok {
			contentType, _, _ := h.ContentType()
			if contentType == "text/plain" || contentType == "" {
				data, err := io.ReadAll(p.Body)
				if err != nil {
					return "", fmt.Errorf("read part body: %w", err)
				}
				return string(data), nil
			}
		}
	}
	return "", nil
}
