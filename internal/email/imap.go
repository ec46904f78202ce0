package email

import (
	"context"
	"fmt"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/inbox-triage/internal/model"
)

const inbox = "INBOX"

// IMAPClient wraps go-imap v2 for reading the account's inbox.
type IMAPClient struct {
	cfg IMAPConfig
}

// NewIMAPClient creates a new IMAP client configuration.
func NewIMAPClient(cfg IMAPConfig) *IMAPClient {
	return &IMAPClient{cfg: cfg}
}

// connect establishes a connection to the IMAP server and authenticates.
// The caller is responsible for calling Logout on the returned client.
func (c *IMAPClient) connect() (*imapclient.Client, error) {
	addr := c.cfg.Host + ":" + c.cfg.Port

	var client *imapclient.Client
	var err error

	if c.cfg.TLS {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(c.cfg.Username, c.cfg.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &AuthError{
			Protocol: "imap",
			Message: fmt.Sprintf(
				"authentication failed for %s: %v",
				c.cfg.Username, err,
			),
		}
	}

	return client, nil
}

// Open connects, authenticates and selects INBOX.
func (c *IMAPClient) Open(_ context.Context) (Session, error) {
	client, err := c.connect()
	if err != nil {
		return nil, err
	}

	if _, err := client.Select(inbox, nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("selecting %s: %w", inbox, err)
	}

	return &imapSession{client: client}, nil
}

// Ping verifies the credentials by opening and closing a session.
func (c *IMAPClient) Ping(ctx context.Context) error {
	sess, err := c.Open(ctx)
	if err != nil {
		return err
	}
	return sess.Close()
}

// FetchUnread opens a session, returns up to limit unread messages and,
// when markRead is set, flags each of them \Seen before closing.
func (c *IMAPClient) FetchUnread(
	ctx context.Context, limit int, markRead bool,
) ([]model.InboundMessage, error) {
	sess, err := c.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = sess.Close() }()

	msgs, err := sess.Unread(ctx, limit)
	if err != nil {
		return nil, err
	}

	if markRead {
		for _, m := range msgs {
			if err := sess.MarkRead(ctx, m.UID); err != nil {
				return msgs, fmt.Errorf("marking UID %d read: %w", m.UID, err)
			}
		}
	}

	return msgs, nil
}

// imapSession implements Session over a logged-in imapclient.Client.
type imapSession struct {
	client *imapclient.Client
}

func (s *imapSession) Unread(
	_ context.Context, limit int,
) ([]model.InboundMessage, error) {
	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}

	searchData, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching unread messages: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	// Keep the most recent ones
	if limit > 0 && len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}

	bodySection := &imap.FetchItemBodySection{
		Peek: true,
	}

	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		Flags:       true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := s.client.Fetch(imap.UIDSetNum(uids...), fetchOpts)
	defer fetchCmd.Close()

	var messages []model.InboundMessage
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			continue
		}

		messages = append(messages, messageFromBuffer(buf, bodySection))
	}

	if err := fetchCmd.Close(); err != nil {
		return messages, fmt.Errorf("fetching unread messages: %w", err)
	}

	return messages, nil
}

func (s *imapSession) MarkRead(_ context.Context, uid uint32) error {
	storeCmd := s.client.Store(imap.UIDSetNum(imap.UID(uid)), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)

	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("setting \\Seen on UID %d: %w", uid, err)
	}
	return nil
}

func (s *imapSession) Close() error {
	return s.client.Logout().Wait()
}

// messageFromBuffer converts fetched IMAP data into an InboundMessage,
// parsing the MIME body when it was requested.
func messageFromBuffer(
	buf *imapclient.FetchMessageBuffer,
	section *imap.FetchItemBodySection,
) model.InboundMessage {
	msg := model.InboundMessage{
		UID: uint32(buf.UID),
	}

	if env := buf.Envelope; env != nil {
		msg.MessageID = env.MessageID
		msg.Subject = env.Subject
		msg.Date = env.Date

		if len(env.From) > 0 {
			msg.From = model.Address{
				Email: env.From[0].Addr(),
				Name:  env.From[0].Name,
			}
		}

		for _, to := range env.To {
			msg.To = append(msg.To, model.Address{
				Email: to.Addr(),
				Name:  to.Name,
			})
		}
	}

	for _, flag := range buf.Flags {
		if flag == imap.FlagSeen {
			msg.Seen = true
		}
	}

	if raw := buf.FindBodySection(section); raw != nil {
		parsed := parseMIMEBody(raw)
		msg.BodyText = parsed.text
		msg.BodyHTML = parsed.html
		msg.InReplyTo = parsed.inReplyTo
		if msg.BodyText == "" && msg.BodyHTML != "" {
			msg.BodyText = stripHTML(msg.BodyHTML)
		}
	}

	return msg
}
