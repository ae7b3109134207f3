package otp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"

	"pearlgen/internal/shared/types"
)

// MailboxChannel reads verification emails from a catch-all IMAP mailbox.
// Every provisioned identity receives mail in the same inbox; polling
// filters on the To header.
type MailboxChannel struct {
	server   string
	port     int
	email    string
	password string
}

// NewMailboxChannel builds the channel from the [imap] config section.
func NewMailboxChannel(cfg types.IMAPConf) *MailboxChannel {
	return &MailboxChannel{
		server: cfg.Server,
		port:   cfg.Port,
		// App passwords are often pasted with spaces.
		password: strings.ReplaceAll(cfg.Password, " ", ""),
		email:    cfg.Email,
	}
}

func (c *MailboxChannel) Name() string { return ChannelMailbox }

// Open dials the IMAP server and authenticates. Connection or login errors
// are channel failures.
func (c *MailboxChannel) Open(ctx context.Context, target string) (Session, error) {
	addr := fmt.Sprintf("%s:%d", c.server, c.port)
	client, err := imapclient.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("imap dial %s: %w", addr, err)
	}
	if err := client.Login(c.email, c.password).Wait(); err != nil {
		client.Close()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		client.Close()
		return nil, fmt.Errorf("imap select inbox: %w", err)
	}

	return &mailboxSession{
		client: client,
		target: target,
		since:  time.Now(),
	}, nil
}

type mailboxSession struct {
	client *imapclient.Client
	target string
	since  time.Time
}

// Poll searches for unread mail addressed to the target identity and tries
// to extract a code from the newest match.
func (s *mailboxSession) Poll(ctx context.Context) (string, error) {
	criteria := &imap.SearchCriteria{
		Since: s.since,
		Header: []imap.SearchCriteriaHeaderField{
			{Key: "To", Value: s.target},
		},
		NotFlag: []imap.Flag{imap.FlagSeen},
	}

	data, err := s.client.Search(criteria, nil).Wait()
	if err != nil {
		return "", fmt.Errorf("imap search: %w", err)
	}

	seqNums := data.AllSeqNums()
	if len(seqNums) == 0 {
		return "", nil
	}

	// Newest matching message wins.
	latest := seqNums[len(seqNums)-1]
	section := &imap.FetchItemBodySection{}
	fetchOptions := &imap.FetchOptions{
		BodySection: []*imap.FetchItemBodySection{section},
	}
	messages, err := s.client.Fetch(imap.SeqSetNum(latest), fetchOptions).Collect()
	if err != nil {
		return "", fmt.Errorf("imap fetch: %w", err)
	}
	if len(messages) == 0 {
		return "", nil
	}

	raw := messages[0].FindBodySection(section)
	if len(raw) == 0 {
		return "", nil
	}

	body := messageBody(raw)
	if code, ok := ExtractCode(body); ok {
		return code, nil
	}
	return "", nil
}

func (s *mailboxSession) Close() error {
	// Best effort; the connection is gone either way.
	s.client.Logout()
	return s.client.Close()
}

// messageBody collects the text/plain and text/html parts of a raw RFC822
// message, skipping attachments. Falls back to the raw bytes when the
// message cannot be parsed as MIME.
func messageBody(raw []byte) string {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return string(raw)
	}

	var sb strings.Builder
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		if _, ok := part.Header.(*mail.InlineHeader); ok {
			content, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			sb.Write(content)
		}
	}
	if sb.Len() == 0 {
		return string(raw)
	}
	return sb.String()
}
