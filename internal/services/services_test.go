package services

import (
	"bytes"
	"errors"
	"image/png"
	"net/url"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, f.err
}

func TestNotifierWithoutTokenIsNoop(t *testing.T) {
	n, err := NewNotifier("", []int64{1})
	require.NoError(t, err)
	assert.NotPanics(t, func() { n.Notify("hola") })

	var nilNotifier *Notifier
	assert.NotPanics(t, func() { nilNotifier.Notify("hola") })
}

func TestNotifySendsToEveryChat(t *testing.T) {
	fs := &fakeSender{}
	n, err := NewNotifier("", []int64{20, 10})
	require.NoError(t, err)
	n.sender = fs

	n.Notify("Nueva solicitud")
	require.Len(t, fs.sent, 2)
	assert.Equal(t, int64(10), fs.sent[0].ChatID)
	assert.Equal(t, int64(20), fs.sent[1].ChatID)
	assert.Equal(t, "Nueva solicitud", fs.sent[0].Text)

	fs.err = errors.New("boom")
	assert.NotPanics(t, func() { n.Notify("otra") })
}

func startFrom(userID, chatID int64) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     "/start",
		From:     &tgbotapi.User{ID: userID},
		Chat:     &tgbotapi.Chat{ID: chatID},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}},
	}}
}

func TestStartCommandRegistersAdminChat(t *testing.T) {
	fs := &fakeSender{}
	n, err := NewNotifier("", []int64{111})
	require.NoError(t, err)
	n.sender = fs

	// admin 111 opens a group chat with the bot
	n.handleUpdate(startFrom(111, -500))

	assert.Equal(t, []int64{-500, 111}, n.Chats())
	require.Len(t, fs.sent, 1)
	assert.Contains(t, fs.sent[0].Text, "-500")

	// plain text is ignored
	n.handleUpdate(tgbotapi.Update{Message: &tgbotapi.Message{Text: "hola", From: &tgbotapi.User{ID: 111}, Chat: &tgbotapi.Chat{ID: 5}}})
	assert.Equal(t, []int64{-500, 111}, n.Chats())
}

func TestStartCommandFromStrangerIsRefused(t *testing.T) {
	fs := &fakeSender{}
	n, err := NewNotifier("", []int64{111})
	require.NoError(t, err)
	n.sender = fs

	n.handleUpdate(startFrom(999, 999))
	assert.Equal(t, []int64{111}, n.Chats())
	require.Len(t, fs.sent, 1)
	assert.Equal(t, int64(999), fs.sent[0].ChatID)
	assert.Contains(t, fs.sent[0].Text, "No estás registrado")

	fs.sent = nil
	n.Notify("Cliente: Ana  Tel: +525512345678")
	require.Len(t, fs.sent, 1)
	assert.Equal(t, int64(111), fs.sent[0].ChatID)

	// a message without sender is refused too
	n.handleUpdate(tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     "/start",
		Chat:     &tgbotapi.Chat{ID: 42},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}},
	}})
	assert.Equal(t, []int64{111}, n.Chats())
}

func TestPaidMessage(t *testing.T) {
	msg := PaidMessage(PaidMessageData{
		AppName:   "Rifa Élite 100",
		BuyerName: "Ana",
		Folio:     "RF26-ABC123",
		Numbers:   []int{15, 5, 10},
		Total:     450,
		DrawAt:    time.Date(2026, 3, 6, 20, 0, 0, 0, time.UTC),
	})
	assert.Contains(t, msg, "PAGO CONFIRMADO – Rifa Élite 100")
	assert.Contains(t, msg, "Folio: RF26-ABC123")
	assert.Contains(t, msg, "Boletos: 05, 10, 15")
	assert.Contains(t, msg, "Total pagado: $450 MXN")
	assert.Contains(t, msg, "Sorteo: 06/Mar/2026 – 8:00 PM (CDMX)")
}

func TestWaLink(t *testing.T) {
	link := WaLink("525512345678", "Hola Ana\nFolio: RF26")
	require.True(t, strings.HasPrefix(link, "https://wa.me/525512345678?text="))

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "Hola Ana\nFolio: RF26", u.Query().Get("text"))
}

func TestVerificationQR(t *testing.T) {
	b, err := VerificationQR("https://rifa.example/verify?folio=RF26-ABC123", 0)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, DefaultQRSize, img.Bounds().Dx())
}
