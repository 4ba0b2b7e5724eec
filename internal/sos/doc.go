// Package sos is the business boundary for VitalLink's emergency alerting.
// It defines the Service (evaluate readings, notify contacts, record alerts),
// the ContactStore and AlertStore persistence interfaces, the Notifier used to
// reach contacts, and the domain models shared by the store backends.
package sos
