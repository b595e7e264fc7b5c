package bot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"certassist-backend/lib/restyutil"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Update is one inbound event from the Bot API long poll.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

type Message struct {
	MessageID int64     `json:"message_id"`
	From      *User     `json:"from"`
	Chat      Chat      `json:"chat"`
	Text      string    `json:"text"`
	Caption   string    `json:"caption"`
	Document  *Document `json:"document"`
}

type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type Document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
}

type apiResponse[T any] struct {
	Ok          bool   `json:"ok"`
	Description string `json:"description"`
	Result      T      `json:"result"`
}

type fileInfo struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path"`
}

var restyOutput restyutil.InstrumentOutput

// SetRestyInstrumentOutput dumps Bot API exchanges to the given sink.
// Only affects clients created afterwards.
func SetRestyInstrumentOutput(output restyutil.InstrumentOutput) {
	restyOutput = output
}

// TelegramClient talks to the Telegram Bot API over HTTPS. One client
// serves one bot token.
type TelegramClient struct {
	client *resty.Client
	token  string
}

func NewTelegramClient(token string) *TelegramClient {
	client := resty.New()
	client.SetBaseURL("https://api.telegram.org")
	client.SetTimeout(time.Second * 90)

	restyutil.InstrumentClient(client, tracer, restyOutput)

	return &TelegramClient{client: client, token: token}
}

func (t *TelegramClient) call(method string) string {
	return fmt.Sprintf("/bot%s/%s", t.token, method)
}

// GetUpdates long-polls for new updates starting at offset. It returns
// once the server responds, which may take up to timeoutSec on an idle
// bot.
func (t *TelegramClient) GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]Update, error) {
	ctx, span := tracer.Start(ctx, "GetUpdates")
	defer span.End()

	var out apiResponse[[]Update]
	res, err := t.client.R().
		SetContext(ctx).
		SetQueryParam("offset", strconv.FormatInt(offset, 10)).
		SetQueryParam("timeout", strconv.Itoa(timeoutSec)).
		SetQueryParam("allowed_updates", `["message"]`).
		SetResult(&out).
		Get(t.call("getUpdates"))
	if err != nil {
		return nil, err
	}
	if !out.Ok {
		return nil, fmt.Errorf("getUpdates: %s (http %d)", out.Description, res.StatusCode())
	}
	return out.Result, nil
}

func (t *TelegramClient) SendMessage(ctx context.Context, chatID int64, text string) error {
	ctx, span := tracer.Start(ctx, "SendMessage", trace.WithAttributes(
		attribute.Int64("chat_id", chatID),
	))
	defer span.End()

	var out apiResponse[Message]
	res, err := t.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"chat_id": strconv.FormatInt(chatID, 10),
			"text":    text,
		}).
		SetResult(&out).
		Post(t.call("sendMessage"))
	if err != nil {
		return err
	}
	if !out.Ok {
		return fmt.Errorf("sendMessage: %s (http %d)", out.Description, res.StatusCode())
	}
	return nil
}

func (t *TelegramClient) SendPhoto(ctx context.Context, chatID int64, path, caption string) error {
	ctx, span := tracer.Start(ctx, "SendPhoto", trace.WithAttributes(
		attribute.Int64("chat_id", chatID),
	))
	defer span.End()

	return t.sendFile(ctx, "sendPhoto", "photo", chatID, path, caption)
}

func (t *TelegramClient) SendDocument(ctx context.Context, chatID int64, path, caption string) error {
	ctx, span := tracer.Start(ctx, "SendDocument", trace.WithAttributes(
		attribute.Int64("chat_id", chatID),
	))
	defer span.End()

	return t.sendFile(ctx, "sendDocument", "document", chatID, path, caption)
}

func (t *TelegramClient) sendFile(ctx context.Context, method, field string, chatID int64, path, caption string) error {
	form := map[string]string{
		"chat_id": strconv.FormatInt(chatID, 10),
	}
	if caption != "" {
		form["caption"] = caption
	}

	var out apiResponse[Message]
	res, err := t.client.R().
		SetContext(ctx).
		SetFile(field, path).
		SetFormData(form).
		SetResult(&out).
		Post(t.call(method))
	if err != nil {
		return err
	}
	if !out.Ok {
		return fmt.Errorf("%s: %s (http %d)", method, out.Description, res.StatusCode())
	}
	return nil
}

// Download fetches a bot file to dir and returns the local path. The
// file keeps its server-side base name.
func (t *TelegramClient) Download(ctx context.Context, fileID, dir string) (string, error) {
	ctx, span := tracer.Start(ctx, "Download")
	defer span.End()

	var out apiResponse[fileInfo]
	res, err := t.client.R().
		SetContext(ctx).
		SetQueryParam("file_id", fileID).
		SetResult(&out).
		Get(t.call("getFile"))
	if err != nil {
		return "", err
	}
	if !out.Ok {
		return "", fmt.Errorf("getFile: %s (http %d)", out.Description, res.StatusCode())
	}

	err = os.MkdirAll(dir, 0755)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(dir, filepath.Base(out.Result.FilePath))

	dl, err := t.client.R().
		SetContext(ctx).
		SetOutput(dest).
		Get(fmt.Sprintf("/file/bot%s/%s", t.token, out.Result.FilePath))
	if err != nil {
		return "", err
	}
	if dl.IsError() {
		return "", fmt.Errorf("file download: http %d", dl.StatusCode())
	}
	return dest, nil
}
