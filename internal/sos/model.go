package sos

import (
	"strings"
	"time"
)

// Status is the outcome of an analysis.
type Status string

const (
	// StatusOK means every reading was inside its range
	StatusOK Status = "OK"

	// StatusSOS means at least one reading was abnormal
	StatusSOS Status = "SOS"
)

// Delivery statuses recorded on an alert for each channel.
const (
	DeliverySent       = "Sent (Simulated)"
	DeliveryNoContacts = "Failed (No Contacts)"
)

// Response messages.
const (
	MessageOK  = "User is OK. All vitals normal."
	MessageSOS = "SOS Generated. Vitals Critical."
)

const reasonPrefix = "Abnormal value(s): "

// Contact is an emergency contact. A lower Priority is notified first.
type Contact struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber"`
	Priority    int    `json:"priority"`
}

// Alert is the persisted record of one SOS analysis.
type Alert struct {
	ID             int64     `json:"id"`
	Ref            string    `json:"ref"`
	Timestamp      time.Time `json:"timestamp"`
	HeartRate      float64   `json:"heartRate"`
	SpO2           float64   `json:"spo2"`
	Temperature    float64   `json:"temperature"`
	Location       string    `json:"location"`
	AbnormalFields []string  `json:"abnormalFields"`
	Reason         string    `json:"reason"`
	WhatsAppStatus string    `json:"whatsappStatus"`
	SMSStatus      string    `json:"smsStatus"`
}

// Reading is one set of vitals submitted for analysis.
type Reading struct {
	HeartRate   float64
	SpO2        float64
	Temperature float64
	Location    string
}

// Result is returned to the caller of Analyze.
type Result struct {
	Status       Status   `json:"status"`
	SOSGenerated bool     `json:"sosGenerated"`
	Message      string   `json:"message"`
	Details      *Details `json:"details,omitempty"`
}

// Details describes what an SOS did.
type Details struct {
	AbnormalFields []string `json:"abnormalFields"`
	SentTo         []string `json:"sentTo"`
	WhatsAppStatus string   `json:"whatsappStatus"`
	SMSStatus      string   `json:"smsStatus"`
}

// Reason builds the human readable reason stored on an alert.
func Reason(abnormal []string) string {
	return reasonPrefix + strings.Join(abnormal, ", ")
}
