package dto

import "github.com/shopspring/decimal"

// SMSAllowanceResponse cupo mensual del salón.
type SMSAllowanceResponse struct {
	SalonID    string `json:"salon_id"`
	Tier       string `json:"tier"`
	StaffCount int    `json:"staff_count"`
	Allowance  int    `json:"allowance"`
}

// SMSDecisionRequest body para POST /api/sms/decision.
type SMSDecisionRequest struct {
	NotificationType string `json:"notification_type"`
	Priority         string `json:"priority,omitempty"` // opcional: high | medium | low
	Remaining        int    `json:"remaining"`
}

// SMSDecisionResponse canal elegido para la notificación.
type SMSDecisionResponse struct {
	NotificationType string `json:"notification_type"`
	Priority         string `json:"priority"`
	SendSMS          bool   `json:"send_sms"`
	Channel          string `json:"channel"` // sms | email
	Allowance        int    `json:"allowance"`
	Remaining        int    `json:"remaining"`
}

// SMSOverageResponse coste del excedente del mes.
type SMSOverageResponse struct {
	Used      int             `json:"used"`
	Allowance int             `json:"allowance"`
	Excess    int             `json:"excess"`
	Cost      decimal.Decimal `json:"cost"`
	Currency  string          `json:"currency"`
}
