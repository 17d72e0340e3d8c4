// Package notify sends pipeline notifications by email: error reports to
// the operators and alignment results to the result recipients.
package notify

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"gopkg.in/gomail.v2"
)

// DefaultErrorSubject is used for error reports without a subject.
const DefaultErrorSubject = "Illumina pipeline error"

// Recipients are the email lists of the recipients file.
type Recipients struct {
	Results []string
	Errors  []string
	Capture []string
}

// ParseRecipients parses EMAIL_RESULTS=, EMAIL_ERRORS= and EMAIL_CAPTURE=
// lines with comma-separated addresses.
func ParseRecipients(r io.Reader) (Recipients, error) {
	var rc Recipients
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		for _, f := range []struct {
			prefix string
			list   *[]string
		}{
			{"EMAIL_RESULTS=", &rc.Results},
			{"EMAIL_ERRORS=", &rc.Errors},
			{"EMAIL_CAPTURE=", &rc.Capture},
		} {
			if strings.HasPrefix(line, f.prefix) {
				*f.list = splitAddresses(strings.TrimPrefix(line, f.prefix))
			}
		}
	}
	return rc, sc.Err()
}

func splitAddresses(s string) []string {
	var addrs []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

// LoadRecipients reads the recipients file at path.
func LoadRecipients(ctx context.Context, path string) (Recipients, error) {
	data, err := file.ReadFile(ctx, path)
	if err != nil {
		return Recipients{}, errors.E(errors.Invalid, err, "read email recipients")
	}
	return ParseRecipients(strings.NewReader(string(data)))
}

// Message is an email.
type Message struct {
	From        string
	To          []string
	Subject     string
	Body        string
	Attachments []string
}

// Mailer sends email.
type Mailer interface {
	Send(m *Message) error
}

// SMTPMailer sends email through an unauthenticated SMTP relay.
type SMTPMailer struct {
	Host string
	Port int
}

// Send implements Mailer.
func (s SMTPMailer) Send(m *Message) error {
	if len(m.To) == 0 {
		return errors.E(errors.Invalid, "email", m.Subject, "has no recipients")
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.From)
	msg.SetHeader("To", m.To...)
	msg.SetHeader("Subject", m.Subject)
	msg.SetBody("text/plain", m.Body)
	for _, a := range m.Attachments {
		msg.Attach(a)
	}
	d := &gomail.Dialer{Host: s.Host, Port: s.Port}
	if err := d.DialAndSend(msg); err != nil {
		return errors.E(errors.Unavailable, err, "send email via", s.Host)
	}
	return nil
}

// ErrorReport describes a failure.
type ErrorReport struct {
	Subject   string
	Detail    string
	WorkDir   string
	Hostname  string
	JobID     string
	FCBarcode string
}

// Body returns the email text of the report.
func (r ErrorReport) Body() string {
	body := r.Detail
	if body == "" {
		body = "No detailed error message specified"
	}
	for _, f := range []struct{ label, val string }{
		{"Working Directory", r.WorkDir},
		{"Hostname", r.Hostname},
		{"Job ID", r.JobID},
		{"Flowcell Barcode", r.FCBarcode},
	} {
		if f.val != "" {
			body += "\r\n" + f.label + " : " + f.val
		}
	}
	return body
}

// Reporter reports errors and results. Mail failures never replace the
// error being reported; they are logged.
type Reporter struct {
	From       string
	Recipients Recipients
	// Mailer may be nil, in which case nothing is mailed.
	Mailer Mailer
	// Stderr receives error reports. Nil means os.Stderr.
	Stderr io.Writer
}

// ReportError writes the report to stderr and mails it to the error
// recipients.
func (r *Reporter) ReportError(rep ErrorReport) {
	if rep.Subject == "" {
		rep.Subject = DefaultErrorSubject
	}
	w := r.Stderr
	if w == nil {
		w = os.Stderr
	}
	fmt.Fprintf(w, "%s\n%s\n", rep.Subject, strings.Replace(rep.Body(), "\r\n", "\n", -1))
	if r.Mailer == nil || len(r.Recipients.Errors) == 0 {
		return
	}
	err := r.Mailer.Send(&Message{From: r.From, To: r.Recipients.Errors, Subject: rep.Subject, Body: rep.Body()})
	if err != nil {
		log.Error.Printf("mail error report %q: %v", rep.Subject, err)
	}
}

// SendResults mails the alignment results of an analysis directory: the
// mapping statistics, the uniqueness report and every PNG plot.
func (r *Reporter) SendResults(dir, fcBarcode, library string) error {
	if r.Mailer == nil || len(r.Recipients.Results) == 0 {
		log.Printf("no result recipients; not mailing results of %s", fcBarcode)
		return nil
	}
	m, err := ResultMessage(dir, fcBarcode, library)
	if err != nil {
		return err
	}
	m.From = r.From
	m.To = r.Recipients.Results
	return r.Mailer.Send(m)
}

// ResultMessage builds the result email of an analysis directory.
func ResultMessage(dir, fcBarcode, library string) (*Message, error) {
	if fcBarcode == "" {
		fcBarcode = "unknown"
	}
	m := &Message{Subject: "Illumina Alignment Results : Flowcell " + fcBarcode}
	if library != "" {
		m.Subject += " Library : " + library
	}
	var body strings.Builder
	if data, err := readOptional(filepath.Join(dir, "BWA_Map_Stats.txt")); err != nil {
		return nil, err
	} else if data != "" {
		body.WriteString(data)
		body.WriteString("\r\n\r\n")
	}
	body.WriteString("Sequence Quality Analysis\r\n\r\n")
	uniq, err := filepath.Glob(filepath.Join(dir, "*_uniqueness.txt"))
	if err != nil {
		return nil, err
	}
	if len(uniq) > 0 {
		data, err := readOptional(uniq[0])
		if err != nil {
			return nil, err
		}
		body.WriteString(data)
	}
	body.WriteString("\r\n\r\nFile System Path : " + dir)
	m.Body = body.String()
	if m.Attachments, err = filepath.Glob(filepath.Join(dir, "*.png")); err != nil {
		return nil, err
	}
	sort.Strings(m.Attachments)
	return m, nil
}

func readOptional(path string) (string, error) {
	data, err := file.ReadFile(context.Background(), path)
	if err == nil {
		return string(data), nil
	}
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		return "", nil
	}
	return "", err
}

// FakeMailer records messages instead of sending them.
type FakeMailer struct {
	Sent []*Message
	Err  error
}

// Send implements Mailer.
func (f *FakeMailer) Send(m *Message) error {
	f.Sent = append(f.Sent, m)
	return f.Err
}
