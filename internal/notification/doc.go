// Package notification builds and parses outbound-message SOAP envelopes,
// the push payload an org posts when an Account changes.
package notification
