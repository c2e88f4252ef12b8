package api

import (
	"cronos/internal/manager"
	"cronos/internal/messaging"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Sessions int    `json:"sessions"`
}

type SessionsResponse struct {
	Sessions []manager.Info `json:"sessions"`
}

type ProxyRequest struct {
	Proxy string `json:"proxy" binding:"required"`
}

type ProxyResponse struct {
	Identity string `json:"identity,omitempty"`
	Proxy    string `json:"proxy"`
}

type ProxiesResponse struct {
	Proxies  []string `json:"proxies"`
	Strategy string   `json:"strategy"`
}

type MessageRequest struct {
	Session      string `json:"session" binding:"required"`
	To           string `json:"to" binding:"required"`
	NonContact   bool   `json:"non_contact"`
	Text         string `json:"text"`
	ImagePath    string `json:"image_path"`
	AudioPath    string `json:"audio_path"`
	DocumentPath string `json:"document_path"`
	UseVPN       bool   `json:"use_vpn"`
}

func (r MessageRequest) toRequest() messaging.Request {
	return messaging.Request{
		Session:    r.Session,
		To:         r.To,
		NonContact: r.NonContact,
		UseVPN:     r.UseVPN,
		Message: messaging.Message{
			Image:    r.ImagePath,
			Text:     r.Text,
			Audio:    r.AudioPath,
			Document: r.DocumentPath,
		},
	}
}

type MessageResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Step    string `json:"step,omitempty"`
	Error   string `json:"error,omitempty"`
}

type HistoryEntry struct {
	ID         string   `json:"id"`
	Session    string   `json:"session"`
	To         string   `json:"to"`
	NonContact bool     `json:"non_contact"`
	Kinds      []string `json:"kinds"`
	Success    bool     `json:"success"`
	Step       string   `json:"step,omitempty"`
	Error      string   `json:"error,omitempty"`
	StartedAt  string   `json:"started_at"`
	FinishedAt string   `json:"finished_at"`
}

type HistoryResponse struct {
	Messages []HistoryEntry `json:"messages"`
}
