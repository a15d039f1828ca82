package notification

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/accountsync/internal/record"
)

// Message is a decoded outbound message.
type Message struct {
	OrganizationID string
	ActionID       string
	EnterpriseURL  string
	PartnerURL     string
	Notifications  []Notification
}

// Notification is one changed sObject.
type Notification struct {
	ID         string
	ObjectType string
	Fields     record.Fields
}

// currencyFields hold decimal amounts and are canonicalised on parse.
var currencyFields = map[string]bool{
	"AnnualRevenue": true,
}

// readOnlyFields are maintained by the org and never written to a target.
var readOnlyFields = []string{
	"CreatedById",
	"IsDeleted",
	"LastReferencedDate",
	"LastViewedDate",
	"PhotoUrl",
	"SystemModstamp",
}

type xmlEnvelope struct {
	XMLName xml.Name `xml:"http://schemas.xmlsoap.org/soap/envelope/ Envelope"`
	Body    struct {
		Notifications *xmlNotifications `xml:"http://soap.sforce.com/2005/09/outbound notifications"`
	} `xml:"http://schemas.xmlsoap.org/soap/envelope/ Body"`
}

type xmlNotifications struct {
	OrganizationID string            `xml:"OrganizationId"`
	ActionID       string            `xml:"ActionId"`
	EnterpriseURL  string            `xml:"EnterpriseUrl"`
	PartnerURL     string            `xml:"PartnerUrl"`
	Notification   []xmlNotification `xml:"Notification"`
}

type xmlNotification struct {
	ID      string `xml:"Id"`
	SObject struct {
		Type   string     `xml:"http://www.w3.org/2001/XMLSchema-instance type,attr"`
		Fields []xmlField `xml:",any"`
	} `xml:"sObject"`
}

type xmlField struct {
	XMLName xml.Name
	Nil     string `xml:"http://www.w3.org/2001/XMLSchema-instance nil,attr"`
	Value   string `xml:",chardata"`
}

// Parse decodes an outbound message envelope.
func Parse(data []byte) (*Message, error) {
	var env xmlEnvelope
	if err := xml.NewDecoder(bytes.NewReader(data)).Decode(&env); err != nil {
		return nil, fmt.Errorf("parse notification: %w", err)
	}
	n := env.Body.Notifications
	if n == nil {
		return nil, errors.New("parse notification: envelope has no notifications element")
	}

	msg := &Message{
		OrganizationID: n.OrganizationID,
		ActionID:       n.ActionID,
		EnterpriseURL:  n.EnterpriseURL,
		PartnerURL:     n.PartnerURL,
	}
	for i, xn := range n.Notification {
		objType := xn.SObject.Type
		if idx := strings.IndexByte(objType, ':'); idx >= 0 {
			objType = objType[idx+1:]
		}
		if objType == "" {
			return nil, fmt.Errorf("parse notification: notification %d has no sObject type", i)
		}

		fields := record.Fields{}
		for _, f := range xn.SObject.Fields {
			if f.Nil == "true" {
				continue
			}
			v := strings.TrimSpace(f.Value)
			if currencyFields[f.XMLName.Local] {
				v = record.CanonicalDecimal(v)
			}
			fields[f.XMLName.Local] = v
		}
		msg.Notifications = append(msg.Notifications, Notification{
			ID:         xn.ID,
			ObjectType: objType,
			Fields:     fields,
		})
	}
	return msg, nil
}

// ParseString is Parse for a string envelope.
func ParseString(s string) (*Message, error) {
	return Parse([]byte(s))
}

// Name returns the Name field.
func (n Notification) Name() string {
	return n.Fields[record.FieldName]
}

// LastModifiedDate parses the LastModifiedDate field.
func (n Notification) LastModifiedDate() (time.Time, error) {
	v, ok := n.Fields[record.FieldLastModifiedDate]
	if !ok {
		return time.Time{}, fmt.Errorf("notification %s: no %s", n.ID, record.FieldLastModifiedDate)
	}
	t, err := record.ParseTime(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("notification %s: %w", n.ID, err)
	}
	return t, nil
}

// LastModifiedByID returns the LastModifiedById field.
func (n Notification) LastModifiedByID() string {
	return n.Fields[record.FieldLastModifiedByID]
}

// Writable returns the fields a target org accepts: read-only and
// system fields are dropped.
func (n Notification) Writable() record.Record {
	drop := append([]string{
		record.FieldID,
		record.FieldCreatedDate,
		record.FieldLastModifiedDate,
		record.FieldLastModifiedByID,
	}, readOnlyFields...)
	return n.Fields.Without(drop...).Record()
}
