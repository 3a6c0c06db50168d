// Package mailer fetches vendor notification emails over IMAP.
//
// Mailboxes are opened read-only and messages are never flagged Seen;
// idempotency comes from the processed_emails token recorded before any
// downstream work, so a crash mid-pipeline re-delivers the mail on the
// next poll instead of silently dropping it.
package mailer

import (
	"context"
	"crypto/sha1"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/charset"
	gomail "github.com/emersion/go-message/mail"

	"github.com/ignite/opinion-monitor/internal/config"
	"github.com/ignite/opinion-monitor/internal/domain"
	"github.com/ignite/opinion-monitor/internal/pkg/logger"
)

// Source yields unprocessed vendor mails. Implemented by Client; the
// scheduler accepts the interface so tests can feed canned mails.
type Source interface {
	FetchUnread(ctx context.Context) ([]domain.RawMail, error)
}

// Client polls one IMAP account for unread vendor notifications.
type Client struct {
	cfg            config.EmailConfig
	subjectPattern *regexp.Regexp
	log            *logger.Logger
}

// NewClient builds an IMAP client from config. Returns an error when the
// configured subject pattern does not compile.
func NewClient(cfg config.EmailConfig, log *logger.Logger) (*Client, error) {
	var pat *regexp.Regexp
	if cfg.Rules.SubjectPattern != "" {
		var err error
		pat, err = regexp.Compile(cfg.Rules.SubjectPattern)
		if err != nil {
			return nil, fmt.Errorf("compile subject pattern: %w", err)
		}
	}
	return &Client{cfg: cfg, subjectPattern: pat, log: log}, nil
}

// FetchUnread connects, searches for unseen mail from the configured sender,
// and returns parsed mails. Each call is one full connect/fetch/logout cycle;
// the poll interval is long enough that holding a connection buys nothing.
func (c *Client) FetchUnread(ctx context.Context) ([]domain.RawMail, error) {
	cl, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer cl.Close()

	if err := cl.Login(c.cfg.EmailAddress, c.cfg.AppPassword).Wait(); err != nil {
		return nil, fmt.Errorf("imap login %s: %w", c.cfg.EmailAddress, err)
	}
	defer cl.Logout()

	selected, err := c.selectMailbox(cl)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
		Header: []imap.SearchCriteriaHeaderField{
			{Key: "From", Value: c.cfg.Rules.Sender},
		},
	}
	search, err := cl.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	uids := search.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	c.log.Info("unread vendor mails found", "count", len(uids))

	fetchOpts := &imap.FetchOptions{
		UID:         true,
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{{Peek: true}},
	}
	msgs, err := cl.Fetch(imap.UIDSetNum(uids...), fetchOpts).Collect()
	if err != nil {
		return nil, fmt.Errorf("imap fetch: %w", err)
	}

	var out []domain.RawMail
	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		m, ok := c.parseMessage(selected.UIDValidity, msg)
		if !ok {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// dial opens a TLS connection with the configured timeout and puts a
// deadline on the whole session, so a hung server fails the tick instead of
// stalling the poll loop.
func (c *Client) dial(ctx context.Context) (*imapclient.Client, error) {
	addr := fmt.Sprintf("%s:%d", c.cfg.IMAPServer, c.cfg.IMAPPort)
	dialer := tls.Dialer{
		NetDialer: &net.Dialer{Timeout: c.cfg.Timeout()},
		Config:    &tls.Config{ServerName: c.cfg.IMAPServer},
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", addr, err)
	}
	if err := conn.SetDeadline(sessionDeadline(ctx, time.Now(), c.cfg.Timeout())); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set imap deadline: %w", err)
	}
	return imapclient.New(conn, &imapclient.Options{
		WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
	}), nil
}

// sessionDeadline bounds one connect/search/fetch cycle. Four timeout units
// cover the login, select, search and fetch round trips; a sooner context
// deadline wins.
func sessionDeadline(ctx context.Context, now time.Time, timeout time.Duration) time.Time {
	deadline := now.Add(4 * timeout)
	if t, ok := ctx.Deadline(); ok && t.Before(deadline) {
		deadline = t
	}
	return deadline
}

// mailboxName returns the configured mailbox, defaulting to INBOX.
func (c *Client) mailboxName() string {
	if c.cfg.Mailbox != "" {
		return c.cfg.Mailbox
	}
	return "INBOX"
}

// selectMailbox opens the configured mailbox read-only, falling back to
// whatever mailbox in the account list is named INBOX when the server rejects
// the configured name.
func (c *Client) selectMailbox(cl *imapclient.Client) (*imap.SelectData, error) {
	opts := &imap.SelectOptions{ReadOnly: true}
	name := c.mailboxName()
	data, err := cl.Select(name, opts).Wait()
	if err == nil {
		return data, nil
	}
	c.log.Warn("mailbox select failed, listing mailboxes", "mailbox", name, "error", err.Error())

	boxes, listErr := cl.List("", "%", nil).Collect()
	if listErr != nil {
		return nil, fmt.Errorf("imap list mailboxes: %w", listErr)
	}
	for _, box := range boxes {
		if strings.Contains(strings.ToUpper(box.Mailbox), "INBOX") {
			data, err = cl.Select(box.Mailbox, opts).Wait()
			if err == nil {
				return data, nil
			}
		}
	}
	return nil, fmt.Errorf("imap select %s: %w", name, err)
}

func (c *Client) parseMessage(uidValidity uint32, msg *imapclient.FetchMessageBuffer) (domain.RawMail, bool) {
	var subject, sender, messageID string
	receivedAt := time.Now()
	if env := msg.Envelope; env != nil {
		subject = env.Subject
		messageID = env.MessageID
		if !env.Date.IsZero() {
			receivedAt = env.Date
		}
		if len(env.From) > 0 {
			sender = env.From[0].Addr()
		}
	}

	if c.subjectPattern != nil && !c.subjectPattern.MatchString(subject) {
		c.log.Debug("skipping mail, subject mismatch", "subject", subject)
		return domain.RawMail{}, false
	}

	var body string
	for _, section := range msg.BodySection {
		body = extractBody(section.Bytes)
		if body != "" {
			break
		}
	}
	if body == "" {
		c.log.Warn("mail has no readable body", "subject", subject)
		return domain.RawMail{}, false
	}

	return domain.RawMail{
		Token:      mailToken(uidValidity, msg.UID, messageID, receivedAt),
		Subject:    subject,
		Sender:     sender,
		Body:       body,
		ReceivedAt: receivedAt,
	}, true
}

// mailToken derives the idempotency token. UIDVALIDITY plus UID is stable for
// the lifetime of the mailbox; a zero UID (server did not return one) falls
// back to a digest of the message id and date.
func mailToken(uidValidity uint32, uid imap.UID, messageID string, date time.Time) string {
	if uid != 0 {
		return fmt.Sprintf("uid:%d:%d", uidValidity, uid)
	}
	h := sha1.Sum([]byte(messageID + "|" + date.UTC().Format(time.RFC3339)))
	return "sha1:" + hex.EncodeToString(h[:])
}

// extractBody parses a raw RFC 822 message and returns the first text part,
// preferring text/html over text/plain since vendor mails carry their report
// links in the HTML part.
func extractBody(raw []byte) string {
	mr, err := gomail.CreateReader(strings.NewReader(string(raw)))
	if err != nil {
		return strings.TrimSpace(string(raw))
	}

	var plain, html string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		inline, ok := part.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, err := inline.ContentType()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch ct {
		case "text/html":
			if html == "" {
				html = string(data)
			}
		case "text/plain":
			if plain == "" {
				plain = string(data)
			}
		}
	}
	if html != "" {
		return html
	}
	return plain
}
