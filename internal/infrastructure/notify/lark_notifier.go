package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkIm "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/garyjia/barangay-docflow/internal/application/port"
)

// LarkConfig holds Lark app credentials
type LarkConfig struct {
	AppID     string
	AppSecret string
}

// MessageSender delivers one message to one Lark open_id
type MessageSender interface {
	SendMessage(ctx context.Context, openID, msgType, content string) (string, error)
}

// SDKSender sends through the Lark IM API
type SDKSender struct {
	client *lark.Client
	logger *zap.Logger
}

// NewSDKSender creates a Lark SDK client with token caching
func NewSDKSender(cfg LarkConfig, logger *zap.Logger) *SDKSender {
	client := lark.NewClient(cfg.AppID, cfg.AppSecret,
		lark.WithLogLevel(larkcore.LogLevelInfo),
		lark.WithEnableTokenCache(true),
	)
	return &SDKSender{client: client, logger: logger}
}

// SendMessage sends a message and returns the Lark message id
func (s *SDKSender) SendMessage(ctx context.Context, openID, msgType, content string) (string, error) {
	req := larkIm.NewCreateMessageReqBuilder().
		ReceiveIdType("open_id").
		Body(larkIm.NewCreateMessageReqBodyBuilder().
			ReceiveId(openID).
			MsgType(msgType).
			Content(content).
			Build()).
		Build()

	resp, err := s.client.Im.Message.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}
	return messageID, nil
}

// LarkNotifier delivers notifications to the Lark accounts of directory users
type LarkNotifier struct {
	sender    MessageSender
	directory port.UserDirectory
	logger    *zap.Logger
}

// NewLarkNotifier creates a Lark-backed notifier
func NewLarkNotifier(sender MessageSender, directory port.UserDirectory, logger *zap.Logger) *LarkNotifier {
	return &LarkNotifier{
		sender:    sender,
		directory: directory,
		logger:    logger,
	}
}

// Notify sends the rendered message to every recipient with a messenger id.
// It fails only when no recipient could be reached.
func (n *LarkNotifier) Notify(ctx context.Context, recipientIDs []string, templateKey string, data map[string]string) error {
	msg, err := Render(templateKey, data)
	if err != nil {
		return err
	}

	content, err := json.Marshal(map[string]string{"text": msg.Title + "\n" + msg.Body})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	var errs []error
	delivered := 0
	for _, id := range recipientIDs {
		user, err := n.directory.GetUser(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("look up %s: %w", id, err))
			continue
		}
		if user == nil || user.MessengerID == "" {
			n.logger.Warn("Recipient has no messenger id", zap.String("user_id", id))
			errs = append(errs, fmt.Errorf("recipient %s has no messenger id", id))
			continue
		}

		messageID, err := n.sender.SendMessage(ctx, user.MessengerID, "text", string(content))
		if err != nil {
			n.logger.Error("Failed to send Lark message", zap.String("user_id", id), zap.Error(err))
			errs = append(errs, fmt.Errorf("send to %s: %w", id, err))
			continue
		}
		delivered++
		n.logger.Info("Lark message sent",
			zap.String("user_id", id),
			zap.String("message_id", messageID),
			zap.String("template", templateKey))
	}

	if delivered == 0 && len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

var _ port.Notifier = (*LarkNotifier)(nil)
