package handlers

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"torgbot/internal/config"
	"torgbot/internal/models"
	"torgbot/internal/services"
)

// BotHandler routes Telegram updates (webhook or long polling) into the
// answer pipeline and the menu flows. Admission control happens here, before
// the pipeline: a rejected question costs nothing downstream.
type BotHandler struct {
	cfg       *config.Config
	bot       *services.TelegramService
	answers   *services.AnswerService
	users     *services.UserService
	followups *services.FollowupService
	rateLimit *services.RateLimitService
}

func NewBotHandler(
	cfg *config.Config,
	bot *services.TelegramService,
	answers *services.AnswerService,
	users *services.UserService,
	followups *services.FollowupService,
	rateLimit *services.RateLimitService,
) *BotHandler {
	return &BotHandler{
		cfg:       cfg,
		bot:       bot,
		answers:   answers,
		users:     users,
		followups: followups,
		rateLimit: rateLimit,
	}
}

// Webhook handles incoming Telegram webhook requests
// POST /api/telegram/webhook/:secret
func (h *BotHandler) Webhook(c *fiber.Ctx) error {
	secret := c.Params("secret")
	if secret == "" || secret != h.cfg.WebhookSecret {
		log.Printf("⚠️  [WEBHOOK] Invalid webhook secret")
		return c.Status(404).JSON(fiber.Map{"error": "Invalid webhook"})
	}

	var update models.TelegramUpdate
	if err := c.BodyParser(&update); err != nil {
		log.Printf("⚠️  [WEBHOOK] Failed to parse update: %v", err)
		return c.SendStatus(200)
	}

	// Process asynchronously; Telegram retries anything that does not get a
	// quick 200
	go h.ProcessUpdate(&update)

	return c.SendStatus(200)
}

// ProcessUpdate handles one Telegram update from either delivery mode
func (h *BotHandler) ProcessUpdate(update *models.TelegramUpdate) {
	switch {
	case update.CallbackQuery != nil:
		h.handleCallback(update.CallbackQuery)
	case update.Message != nil && update.Message.Text != "":
		h.handleMessage(update.Message)
	}
}

func (h *BotHandler) handleMessage(msg *models.TelegramMessage) {
	if msg.From == nil || msg.From.IsBot {
		return
	}
	// Group chats are out of scope, the bot is a private consultant
	if msg.Chat == nil || msg.Chat.Type != "private" {
		return
	}

	userID := msg.From.ID
	text := strings.TrimSpace(msg.Text)

	log.Printf("📨 [BOT] Message from user %d (@%s): %s", userID, msg.From.Username, truncateText(text, 50))

	if err := h.users.UpsertUser(msg.From); err != nil {
		log.Printf("⚠️  [BOT] Failed to upsert user %d: %v", userID, err)
	}

	if strings.HasPrefix(text, "/") {
		h.handleCommand(userID, text)
		return
	}

	h.answerQuestion(userID, text)
}

func (h *BotHandler) handleCommand(userID int64, text string) {
	command := strings.ToLower(strings.Fields(text)[0])
	// Strip the bot mention suffix (/start@my_bot)
	if idx := strings.Index(command, "@"); idx > 0 {
		command = command[:idx]
	}

	switch command {
	case "/start":
		if err := h.bot.SendMessage(userID, welcomeText, h.mainMenu()); err != nil {
			log.Printf("⚠️  [BOT] Failed to send welcome to user %d: %v", userID, err)
		}
	case "/help":
		if err := h.bot.SendMessage(userID, helpText, h.mainMenu()); err != nil {
			log.Printf("⚠️  [BOT] Failed to send help to user %d: %v", userID, err)
		}
	case "/stats":
		h.handleStatsCommand(userID)
	default:
		if err := h.bot.SendMessage(userID, "Неизвестная команда. Наберите /help для списка команд.", nil); err != nil {
			log.Printf("⚠️  [BOT] Failed to reply to user %d: %v", userID, err)
		}
	}
}

// handleStatsCommand serves the weekly statistics summary to admins
func (h *BotHandler) handleStatsCommand(userID int64) {
	if !h.cfg.IsAdmin(userID) {
		h.bot.SendMessage(userID, "Эта команда доступна только администраторам.", nil)
		return
	}

	stats, err := h.users.GetStatistics()
	if err != nil {
		log.Printf("❌ [BOT] Failed to build statistics: %v", err)
		h.bot.SendMessage(userID, "Не удалось собрать статистику.", nil)
		return
	}

	h.bot.SendMessage(userID, formatStatistics(stats), nil)
}

func (h *BotHandler) answerQuestion(userID int64, question string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if !h.rateLimit.Check(ctx, userID) {
		log.Printf("⏳ [BOT] Rate limit exceeded for user %d", userID)
		h.bot.SendMessage(userID, fmt.Sprintf(
			"⏰ Вы превысили лимит запросов (%d в минуту). Подождите немного и попробуйте снова.",
			h.cfg.RateLimitPerMinute), nil)
		return
	}
	h.rateLimit.Record(ctx, userID)

	// Follow-ups are booked for every admitted question, on-topic or not:
	// the nudge is about the user, not the question
	if err := h.followups.ScheduleIfEligible(userID); err != nil {
		log.Printf("⚠️  [BOT] Failed to schedule follow-ups for user %d: %v", userID, err)
	}

	if len([]rune(question)) > h.cfg.MaxMessageLength {
		h.bot.SendMessage(userID, fmt.Sprintf(
			"Вопрос слишком длинный (максимум %d символов). Сформулируйте его короче, пожалуйста.",
			h.cfg.MaxMessageLength), nil)
		return
	}

	h.bot.SendTyping(userID)

	result := h.answers.Answer(userID, question)

	if err := h.bot.SendMessage(userID, result.Answer, h.answerKeyboard()); err != nil {
		log.Printf("❌ [BOT] Failed to deliver answer to user %d: %v", userID, err)
	}
}

func (h *BotHandler) handleCallback(cb *models.TelegramCallbackQuery) {
	h.bot.AnswerCallbackQuery(cb.ID)

	if cb.From == nil {
		return
	}
	userID := cb.From.ID

	log.Printf("🔘 [BOT] Callback %q from user %d", cb.Data, userID)

	switch cb.Data {
	case "ask_question":
		h.bot.SendMessage(userID, "Напишите ваш вопрос о торгах по банкротству, и я отвечу.", nil)
	case "knowledge_base":
		h.users.LogChannelVisit(userID)
		text := fmt.Sprintf("Наша база знаний с разборами торгов и инструкциями: %s", h.cfg.KnowledgeChannelID)
		h.bot.SendMessage(userID, text, h.backToMenu())
	case "contact_specialist":
		text := fmt.Sprintf("Наш специалист ответит на вопросы и поможет с сопровождением сделки.\nТелефон: %s\nTelegram: %s",
			h.cfg.SpecialistPhone, h.cfg.SpecialistTelegram)
		h.bot.SendMessage(userID, text, h.backToMenu())
	case "training":
		text := fmt.Sprintf("Обучение торгам по банкротству с выходом на первую сделку.\nТелефон: %s\nTelegram: %s",
			h.cfg.TrainingPhone, h.cfg.TrainingTelegram)
		h.bot.SendMessage(userID, text, h.backToMenu())
	case "main_menu":
		if cb.Message != nil && cb.Message.Chat != nil {
			if err := h.bot.EditMessageText(cb.Message.Chat.ID, cb.Message.MessageID, welcomeText, h.mainMenu()); err != nil {
				h.bot.SendMessage(userID, welcomeText, h.mainMenu())
			}
		} else {
			h.bot.SendMessage(userID, welcomeText, h.mainMenu())
		}
	default:
		log.Printf("⚠️  [BOT] Unknown callback data: %q", cb.Data)
	}
}

func (h *BotHandler) mainMenu() *models.InlineKeyboard {
	return &models.InlineKeyboard{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			models.Row("💬 Задать вопрос", "ask_question"),
			models.Row("📚 База знаний", "knowledge_base"),
			models.Row("👨‍💼 Связаться со специалистом", "contact_specialist"),
			models.Row("🎓 Обучение торгам", "training"),
		},
	}
}

// answerKeyboard is attached under every answer
func (h *BotHandler) answerKeyboard() *models.InlineKeyboard {
	return &models.InlineKeyboard{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			models.Row("👨‍💼 Связаться со специалистом", "contact_specialist"),
			models.Row("🏠 Главное меню", "main_menu"),
		},
	}
}

func (h *BotHandler) backToMenu() *models.InlineKeyboard {
	return &models.InlineKeyboard{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			models.Row("🏠 Главное меню", "main_menu"),
		},
	}
}

const welcomeText = `👋 Здравствуйте! Я бот-консультант по торгам по банкротству.

Помогу разобраться с покупкой имущества на аукционах: документы, стратегия участия, юридические вопросы, проверка лотов.

Задайте вопрос или выберите раздел в меню.`

const helpText = `Я отвечаю на вопросы о торгах по банкротству (ФЗ-127):

• документы и заявки на участие
• стратегия торгов и выбор лота
• юридические аспекты процедуры
• проверка и приёмка имущества

Команды:
/start — главное меню
/help — эта справка

Просто напишите вопрос текстом.`

func formatStatistics(stats *models.Statistics) string {
	var b strings.Builder
	b.WriteString("📊 **Статистика за 7 дней**\n\n")
	fmt.Fprintf(&b, "Всего запросов: %d\n", stats.TotalRequests)
	fmt.Fprintf(&b, "По теме: %d\n", stats.RelevantRequests)
	fmt.Fprintf(&b, "Уникальных пользователей: %d\n", stats.UniqueUsers)
	fmt.Fprintf(&b, "Переходов в базу знаний: %d\n", stats.ChannelVisits)

	if len(stats.PopularQuestions) > 0 {
		b.WriteString("\n**Популярные вопросы:**\n")
		for i, pq := range stats.PopularQuestions {
			fmt.Fprintf(&b, "%d. %s (%d)\n", i+1, truncateText(pq.Question, 60), pq.Count)
		}
	}

	return b.String()
}

// truncateText shortens a string for logging and summaries
func truncateText(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
