package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier pushes admin alerts to Telegram. Chats listed in
// ADMIN_TELEGRAM_IDS are known from the start; an admin sending /start from
// another chat (a group, say) adds that chat at runtime. Alerts carry buyer
// data, so /start from anyone else is refused.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	sender sender
	admins map[int64]struct{}

	mu    sync.RWMutex
	chats map[int64]struct{}
}

// NewNotifier connects the bot. An empty token gives a notifier that only logs.
func NewNotifier(token string, adminChatIDs []int64) (*Notifier, error) {
	n := &Notifier{
		admins: make(map[int64]struct{}, len(adminChatIDs)),
		chats:  make(map[int64]struct{}, len(adminChatIDs)),
	}
	for _, id := range adminChatIDs {
		n.admins[id] = struct{}{}
		n.chats[id] = struct{}{}
	}
	if token == "" {
		return n, nil
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return n, err
	}
	log.Printf("Bot autorizado en la cuenta %s", bot.Self.UserName)
	n.bot = bot
	n.sender = bot
	return n, nil
}

// Listen consumes bot updates until ctx is done.
func (n *Notifier) Listen(ctx context.Context) {
	if n == nil || n.bot == nil {
		return
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := n.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			n.bot.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			n.handleUpdate(update)
		}
	}
}

func (n *Notifier) handleUpdate(update tgbotapi.Update) {
	if update.Message == nil || !update.Message.IsCommand() {
		return
	}
	switch update.Message.Command() {
	case "start":
		chatID := update.Message.Chat.ID
		if !n.isAdmin(update.Message.From) {
			n.reply(chatID, "No estás registrado como administrador de esta rifa.")
			log.Printf("/start rechazado en chat %d", chatID)
			return
		}
		n.mu.Lock()
		n.chats[chatID] = struct{}{}
		n.mu.Unlock()

		n.reply(chatID, fmt.Sprintf("¡Hola Admin! Tu ID ha sido registrado: %d. Ahora recibirás notificaciones aquí.", chatID))
		log.Printf("Admin Chat ID registrado: %d", chatID)
	}
}

func (n *Notifier) isAdmin(from *tgbotapi.User) bool {
	if from == nil {
		return false
	}
	_, ok := n.admins[from.ID]
	return ok
}

func (n *Notifier) reply(chatID int64, text string) {
	if _, err := n.sender.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Printf("Error respondiendo /start: %v", err)
	}
}

// Chats returns the registered chat ids, sorted.
func (n *Notifier) Chats() []int64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ids := make([]int64, 0, len(n.chats))
	for id := range n.chats {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Notify sends text to every admin chat. Failures are logged only.
func (n *Notifier) Notify(text string) {
	if n == nil || n.sender == nil {
		log.Println("Bot no iniciado, notificación omitida")
		return
	}
	chats := n.Chats()
	if len(chats) == 0 {
		log.Println("AdminChatID desconocido, notificación omitida")
		return
	}
	for _, id := range chats {
		if _, err := n.sender.Send(tgbotapi.NewMessage(id, text)); err != nil {
			log.Printf("Error enviando notificación a %d: %v", id, err)
		}
	}
}
