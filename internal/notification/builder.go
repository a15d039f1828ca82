package notification

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"text/template"

	"github.com/roach88/accountsync/internal/record"
)

// Fixed wrapper values of an outbound message from the sample org.
const (
	DefaultOrganizationID = "00Dd0000000dtDqEAI"
	DefaultActionID       = "04kd0000000PCgvAAG"
	DefaultEnterpriseURL  = "https://na14.salesforce.com/services/Soap/c/30.0/00Dd0000000dtDq"
	DefaultPartnerURL     = "https://na14.salesforce.com/services/Soap/u/30.0/00Dd0000000dtDq"
	DefaultNotificationID = "04ld000000TzMKpAAN"
	DefaultObjectType     = "Account"
)

// Field is one sObject field in envelope order.
type Field struct {
	Name  string
	Value string
}

// Builder accumulates the fields of one outbound notification.
//
// Like record.Builder, every With returns a new builder, so a base
// notification can be reused for several variants.
type Builder struct {
	organizationID string
	actionID       string
	enterpriseURL  string
	partnerURL     string
	notificationID string
	objectType     string
	fields         []Field
}

// NewBuilder returns a builder with the fixed wrapper and no fields.
func NewBuilder() *Builder {
	return &Builder{
		organizationID: DefaultOrganizationID,
		actionID:       DefaultActionID,
		enterpriseURL:  DefaultEnterpriseURL,
		partnerURL:     DefaultPartnerURL,
		notificationID: DefaultNotificationID,
		objectType:     DefaultObjectType,
	}
}

func (b *Builder) clone() *Builder {
	c := *b
	c.fields = make([]Field, len(b.fields))
	copy(c.fields, b.fields)
	return &c
}

// With sets a field. An existing field keeps its position; a new one is
// appended.
func (b *Builder) With(name, value string) *Builder {
	c := b.clone()
	for i := range c.fields {
		if c.fields[i].Name == name {
			c.fields[i].Value = value
			return c
		}
	}
	c.fields = append(c.fields, Field{Name: name, Value: value})
	return c
}

// WithRecord sets every field of r, new fields in sorted name order.
func (b *Builder) WithRecord(r record.Record) *Builder {
	c := b
	for _, name := range r.Keys() {
		c = c.With(name, record.FormatValue(r[name]))
	}
	return c
}

// Without removes a field.
func (b *Builder) Without(name string) *Builder {
	c := b.clone()
	out := c.fields[:0]
	for _, f := range c.fields {
		if f.Name != name {
			out = append(out, f)
		}
	}
	c.fields = out
	return c
}

// WithNotificationID replaces the notification id.
func (b *Builder) WithNotificationID(id string) *Builder {
	c := b.clone()
	c.notificationID = id
	return c
}

// Fields returns the fields in envelope order.
func (b *Builder) Fields() []Field {
	out := make([]Field, len(b.fields))
	copy(out, b.fields)
	return out
}

// Record returns the fields as a record.
func (b *Builder) Record() record.Record {
	r := record.Record{}
	for _, f := range b.fields {
		r[f.Name] = f.Value
	}
	return r
}

var envelopeTemplate = template.Must(template.New("envelope").Funcs(template.FuncMap{
	"xml": escape,
}).Parse(`<?xml version="1.0" encoding="UTF-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:xsd="http://www.w3.org/2001/XMLSchema" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
 <soapenv:Body>
  <notifications xmlns="http://soap.sforce.com/2005/09/outbound">
   <OrganizationId>{{xml .OrganizationID}}</OrganizationId>
   <ActionId>{{xml .ActionID}}</ActionId>
   <SessionId xsi:nil="true"/>
   <EnterpriseUrl>{{xml .EnterpriseURL}}</EnterpriseUrl>
   <PartnerUrl>{{xml .PartnerURL}}</PartnerUrl>
   <Notification>
    <Id>{{xml .NotificationID}}</Id>
    <sObject xsi:type="sf:{{.ObjectType}}" xmlns:sf="urn:sobject.enterprise.soap.sforce.com">
{{- range .Fields}}
     <sf:{{.Name}}>{{xml .Value}}</sf:{{.Name}}>
{{- end}}
    </sObject>
   </Notification>
  </notifications>
 </soapenv:Body>
</soapenv:Envelope>`))

type envelopeData struct {
	OrganizationID string
	ActionID       string
	EnterpriseURL  string
	PartnerURL     string
	NotificationID string
	ObjectType     string
	Fields         []Field
}

func escape(s string) (string, error) {
	var buf bytes.Buffer
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Build renders the envelope on a single line, the way the org posts it.
func (b *Builder) Build() (string, error) {
	for _, f := range b.fields {
		if !validElementName(f.Name) {
			return "", fmt.Errorf("build notification: invalid field name %q", f.Name)
		}
	}
	if !validElementName(b.objectType) {
		return "", fmt.Errorf("build notification: invalid object type %q", b.objectType)
	}

	var buf bytes.Buffer
	err := envelopeTemplate.Execute(&buf, envelopeData{
		OrganizationID: b.organizationID,
		ActionID:       b.actionID,
		EnterpriseURL:  b.enterpriseURL,
		PartnerURL:     b.partnerURL,
		NotificationID: b.notificationID,
		ObjectType:     b.objectType,
		Fields:         b.fields,
	})
	if err != nil {
		return "", fmt.Errorf("build notification: %w", err)
	}
	// Raw newlines only come from the template; values escape theirs.
	return strings.ReplaceAll(buf.String(), "\n", ""), nil
}

// MustBuild is Build for fixtures; it panics on an invalid field name.
func (b *Builder) MustBuild() string {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

func validElementName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && (r >= '0' && r <= '9'):
		default:
			return false
		}
	}
	return true
}

// sampleFields is the Account of the sample outbound message, in the
// order the org emits them.
var sampleFields = []Field{
	{"Id", "001d000001XD5XKAA1"},
	{"AccountNumber", "4564564"},
	{"AnnualRevenue", "10000.0"},
	{"BillingCity", "City"},
	{"BillingCountry", "Country"},
	{"BillingPostalCode", "04001"},
	{"BillingState", "State"},
	{"BillingStreet", "Street"},
	{"CreatedById", "005d0000000yYC7AAM"},
	{"CreatedDate", "2014-05-05T11:47:49.000Z"},
	{"CustomerPriority__c", "High"},
	{"Description", "description ddddd"},
	{"Fax", "+421995555"},
	{"Industry", "Apparel"},
	{"IsDeleted", "false"},
	{"LastModifiedById", "005d0000000yYC7AAM"},
	{"LastModifiedDate", "2014-06-02T13:00:00.000Z"},
	{"LastReferencedDate", "2014-05-19T11:02:14.000Z"},
	{"LastViewedDate", "2014-05-19T11:02:14.000Z"},
	{"Name", "Account bbbb"},
	{"NumberOfEmployees", "5000"},
	{"OwnerId", "005d0000000yYC7AAM"},
	{"Ownership", "Public"},
	{"Phone", "+421995555"},
	{"PhotoUrl", "/services/images/photo/001d000001XD5XKAA1"},
	{"Rating", "Hot"},
	{"SLA__c", "Gold"},
	{"ShippingCity", "Shipping City"},
	{"ShippingCountry", "Country"},
	{"ShippingPostalCode", "04001"},
	{"ShippingState", "Shipping State"},
	{"ShippingStreet", "Shipping street"},
	{"Site", "http://www.test.com"},
	{"SystemModstamp", "2014-05-19T11:02:14.000Z"},
	{"Type", "Prospect"},
	{"Website", "http://www.test.com"},
}

// SampleAccount returns a builder preloaded with the "Account bbbb"
// sample notification.
func SampleAccount() *Builder {
	b := NewBuilder()
	b.fields = make([]Field, len(sampleFields))
	copy(b.fields, sampleFields)
	return b
}

