package main

import (
	"errors"
	"fmt"
	"strings"

	"cronos/internal/messaging"

	"github.com/spf13/cobra"
)

var (
	sendTo         string
	sendNonContact string
	sendText       string
	sendImage      string
	sendAudio      string
	sendDocument   string
	sendVPN        bool
)

// sendCmd sends one composite message
var sendCmd = &cobra.Command{
	Use:   "send <identity>",
	Short: "Send a composite message from a logged-in session",
	Long: `Sends any combination of image, text, audio and document, in that order,
to a saved contact (--to) or to a phone number that is not a contact
(--non-contact). The session must already be logged in.

Example:
  cronos send 5511999998888 --to "Maria" --text "hello" --image ./photo.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendTo, "to", "", "Contact name as shown in the chat list")
	sendCmd.Flags().StringVar(&sendNonContact, "non-contact", "", "Phone number that is not a saved contact")
	sendCmd.Flags().StringVar(&sendText, "text", "", "Text body")
	sendCmd.Flags().StringVar(&sendImage, "image", "", "Image file to attach")
	sendCmd.Flags().StringVar(&sendAudio, "audio", "", "Audio file to attach")
	sendCmd.Flags().StringVar(&sendDocument, "document", "", "Document file to attach")
	sendCmd.Flags().BoolVar(&sendVPN, "vpn", false, "Route the session through the VPN")
}

// sendRequest builds the request described by the send flags.
func sendRequest(identity string) (messaging.Request, error) {
	to, nonContact := strings.TrimSpace(sendTo), strings.TrimSpace(sendNonContact)
	switch {
	case to == "" && nonContact == "":
		return messaging.Request{}, errors.New("one of --to or --non-contact is required")
	case to != "" && nonContact != "":
		return messaging.Request{}, errors.New("--to and --non-contact are mutually exclusive")
	}

	req := messaging.Request{
		Session: identity,
		To:      to,
		UseVPN:  sendVPN,
		Message: messaging.Message{
			Image:    sendImage,
			Text:     sendText,
			Audio:    sendAudio,
			Document: sendDocument,
		},
	}
	if nonContact != "" {
		req.To = nonContact
		req.NonContact = true
	}
	if len(req.Kinds()) == 0 {
		return messaging.Request{}, errors.New("nothing to send: set --text, --image, --audio or --document")
	}
	return req, nil
}

func runSend(cmd *cobra.Command, args []string) error {
	req, err := sendRequest(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.close()

	res := a.sender.Send(ctx, req)
	if !res.Success {
		fmt.Println(errorStyle.Render("send failed") + " " + mutedStyle.Render(res.ID))
		return fmt.Errorf("send to %s failed at %s: %s", res.To, res.Step, res.Error)
	}

	fmt.Printf("%s %s -> %s [%s] %s\n",
		successStyle.Render("sent"),
		res.Session, res.To,
		strings.Join(res.Kinds, ", "),
		mutedStyle.Render(res.ID))
	return nil
}
