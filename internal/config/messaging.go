package config

import "time"

// MessagingConfig configures the pauses of an orchestrated send.
// The web client needs time to settle between UI actions.
type MessagingConfig struct {
	Wait           string `yaml:"wait"`            // element wait bound
	Settle         string `yaml:"settle"`          // before opening a chat and after each payload
	OpenSettle     string `yaml:"open_settle"`     // after a contact chat opens
	KeystrokePause string `yaml:"keystroke_pause"` // between typing and submitting text
	TextSettle     string `yaml:"text_settle"`     // after a text is submitted
	ConfirmPause   string `yaml:"confirm_pause"`   // new-chat number entry
}

// LocatorsConfig holds the XPath locators of the target web client.
// ContactRow must contain the {name} placeholder.
type LocatorsConfig struct {
	SearchBox       string `yaml:"search_box"`
	MessageBox      string `yaml:"message_box"`
	ContactRow      string `yaml:"contact_row"`
	AttachButton    string `yaml:"attach_button"`
	ImageInput      string `yaml:"image_input"`
	AudioInput      string `yaml:"audio_input"`
	DocumentInput   string `yaml:"document_input"`
	SendButton      string `yaml:"send_button"`
	NewChatButton   string `yaml:"new_chat_button"`
	NewChatPhoneBox string `yaml:"new_chat_phone_box"`
	QRCode          string `yaml:"qr_code"`
	LoggedIn        string `yaml:"logged_in"`
}

// DefaultLocators returns locators for the Portuguese WhatsApp Web UI.
func DefaultLocators() LocatorsConfig {
	return LocatorsConfig{
		SearchBox:       `//div[@aria-label="Caixa de texto de pesquisa"]`,
		MessageBox:      `//div[@aria-label="Digite uma mensagem"]`,
		ContactRow:      `//div[@tabindex='0' and .//span[@title={name}]]`,
		AttachButton:    `//button[@title="Attach" or @title="Anexar"]`,
		ImageInput:      `//input[@type='file' and contains(@accept, 'image/*')]`,
		AudioInput:      `//input[@accept="*" and @type="file"]`,
		DocumentInput:   `//input[@accept="*" and @type="file"]`,
		SendButton:      `//div[@aria-label="Enviar"]`,
		NewChatButton:   `//button[@aria-label="Nova conversa"]`,
		NewChatPhoneBox: `//div[@aria-label="Pesquisar nome ou número"]`,
		QRCode:          `//canvas[@aria-label="Scan this QR code to link a device!"]`,
		LoggedIn:        `//*[@id="side"]`,
	}
}

// GetMessagingWait returns the element wait bound used while sending.
func (c *Config) GetMessagingWait() time.Duration {
	return parseDuration(c.Messaging.Wait, 10*time.Second)
}

// GetSettle returns the pause before opening a chat and after each payload.
func (c *Config) GetSettle() time.Duration {
	return parseDuration(c.Messaging.Settle, 5*time.Second)
}

// GetOpenSettle returns the pause after a contact chat opens.
func (c *Config) GetOpenSettle() time.Duration {
	return parseDuration(c.Messaging.OpenSettle, 3*time.Second)
}

// GetKeystrokePause returns the pause between typing and submitting text.
func (c *Config) GetKeystrokePause() time.Duration {
	return parseDuration(c.Messaging.KeystrokePause, time.Second)
}

// GetTextSettle returns the pause after a text is submitted.
func (c *Config) GetTextSettle() time.Duration {
	return parseDuration(c.Messaging.TextSettle, 20*time.Second)
}

// GetConfirmPause returns the pause used by the new-chat flow.
func (c *Config) GetConfirmPause() time.Duration {
	return parseDuration(c.Messaging.ConfirmPause, 2*time.Second)
}
