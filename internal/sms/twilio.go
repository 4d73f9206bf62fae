package sms

import (
	"context"
	"errors"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	api "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

// Carrier rejection codes for alphanumeric sender IDs. Any of these on the
// first attempt triggers a single retry through the messaging service's
// default numeric sender.
var alphaSenderRejectionCodes = map[int]bool{
	21211: true,
	21606: true,
	21408: true,
}

type messageAPI interface {
	CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error)
}

// TwilioSender sends through a Twilio messaging service, optionally fronted
// by an alphanumeric sender name.
type TwilioSender struct {
	api                 messageAPI
	messagingServiceSID string
	alphaSender         string
	useAlphaSender      bool
	logger              *zap.Logger
}

func NewTwilioSender(accountSID, authToken, messagingServiceSID, alphaSender string, useAlphaSender bool, logger *zap.Logger) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})

	return &TwilioSender{
		api:                 client.Api,
		messagingServiceSID: messagingServiceSID,
		alphaSender:         alphaSender,
		useAlphaSender:      useAlphaSender,
		logger:              logger,
	}
}

func (t *TwilioSender) Send(ctx context.Context, msg Message) (*Result, error) {
	params := &api.CreateMessageParams{}
	params.SetTo(msg.To)
	params.SetBody(msg.Body)
	params.SetMessagingServiceSid(t.messagingServiceSID)

	withAlpha := t.useAlphaSender && t.alphaSender != ""
	if withAlpha {
		params.SetFrom(t.alphaSender)
	}

	resp, err := t.api.CreateMessage(params)
	if err != nil {
		code, errMsg := twilioError(err)

		if !withAlpha || !alphaSenderRejectionCodes[code] {
			return nil, &SendError{Code: code, Message: errMsg}
		}

		// Retry once without the alphanumeric sender; the messaging
		// service picks its default numeric identity.
		t.logger.Warn("alphanumeric sender rejected, falling back to default sender",
			zap.Int("code", code),
			zap.String("to", msg.To),
		)

		fallback := &api.CreateMessageParams{}
		fallback.SetTo(msg.To)
		fallback.SetBody(msg.Body)
		fallback.SetMessagingServiceSid(t.messagingServiceSID)

		resp, err = t.api.CreateMessage(fallback)
		if err != nil {
			code, errMsg = twilioError(err)
			return nil, &SendError{Code: code, Message: errMsg}
		}
	}

	return resultFrom(resp), nil
}

func resultFrom(resp *api.ApiV2010Message) *Result {
	res := &Result{}
	if resp == nil {
		return res
	}
	if resp.Sid != nil {
		res.SID = *resp.Sid
	}
	if resp.Status != nil {
		res.Status = *resp.Status
	}
	return res
}

func twilioError(err error) (int, string) {
	var restErr *twclient.TwilioRestError
	if errors.As(err, &restErr) {
		return restErr.Code, restErr.Message
	}
	return 0, err.Error()
}
