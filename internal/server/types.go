package server

import (
	"github.com/roach88/crmsignal/internal/adapter"
	"github.com/roach88/crmsignal/internal/canon"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

type connectionErrorBody struct {
	ConnectionID string `json:"connectionId"`
	Provider     string `json:"provider"`
	Error        string `json:"error"`
}

type generateResponse struct {
	Success bool                  `json:"success"`
	Message string                `json:"message,omitempty"`
	Count   int                   `json:"count"`
	Signals []canon.Signal        `json:"signals"`
	Errors  []connectionErrorBody `json:"errors,omitempty"`
	RunID   string                `json:"runId,omitempty"`
}

type connectRequest struct {
	Platform    string              `json:"platform"`
	Credentials adapter.Credentials `json:"credentials"`
	Settings    map[string]string   `json:"settings"`
}

type connectResponse struct {
	Success      bool   `json:"success"`
	ConnectionID string `json:"connectionId"`
	Platform     string `json:"platform"`
	Connected    bool   `json:"connected"`
	UserName     string `json:"userName,omitempty"`
	OrgName      string `json:"orgName,omitempty"`
	Message      string `json:"message"`
}
