package services

import "torgbot/internal/models"

// Prompt texts and keyword tables for the bankruptcy-auction domain.
// All user-facing strings are Russian; the bot serves a Russian-speaking audience.

const mainSystemPrompt = `Ты — эксперт по торгам по банкротству в России (ФЗ-127 «О несостоятельности (банкротстве)»).
Отвечай кратко, по делу и только на вопросы, связанные с торгами по банкротству:
покупка залогового имущества, участие в аукционах, документы, стратегии торгов,
юридические аспекты. Если уместно, предложи обратиться к нашим специалистам за
сопровождением сделки. Не выдумывай номера статей и сроки — если не уверен, скажи об этом.`

const relevanceCheckPrompt = `Относится ли следующий вопрос к теме торгов по банкротству,
покупке залогового или конкурсного имущества, аукционам или процедурам банкротства?
Ответь одним словом: ДА или НЕТ.

Вопрос: %s`

// intentPrompts refine the system prompt per question category
var intentPrompts = map[models.Intent]string{
	models.IntentDocuments: `Вопрос касается документов. Перечисли конкретный пакет документов,
сроки подачи заявки и типичные ошибки при оформлении.`,
	models.IntentStrategy: `Вопрос касается стратегии торгов. Объясни выбор лота, оценку рисков,
тактику ставок и этапы снижения цены на публичном предложении.`,
	models.IntentLegal: `Вопрос юридический. Ссылайся на ФЗ-127 и смежные нормы, объясни права
и обязанности участника торгов простым языком.`,
	models.IntentProperty: `Вопрос про имущество. Расскажи про проверку юридической чистоты,
осмотр объекта, обременения и порядок передачи имущества победителю.`,
}

const irrelevantAnswer = "Извините, я специализируюсь только на вопросах, связанных с торгами по банкротству. Задайте, пожалуйста, вопрос по этой теме."

const fallbackAnswer = "Я готов помочь вам с вопросами по торгам по банкротству. Можете задать более конкретный вопрос?"

const errorAnswer = "Произошла ошибка при обработке запроса. Попробуйте задать вопрос ещё раз чуть позже."

// courtesyPhrases are always relevant and answered from the FAQ cache
var courtesyPhrases = []string{
	"спасибо", "благодарю", "привет", "здравствуйте", "до свидания", "пока",
}

// domainKeywords mark a question as in-domain without a remote call
var domainKeywords = []string{
	// core terms
	"торг", "банкрот", "несостоятельность", "конкурс",
	// property and real estate
	"залог", "имуществ", "недвижим", "квартир", "дом", "участок", "земл",
	// procedures and documents
	"документ", "участие", "лот", "ставка", "аукцион", "продаж",
	// finance
	"долг", "кредит", "обязательств", "требовани", "денег", "стоимость",
	// legal
	"суд", "закон", "право", "статья", "фз", "кодекс",
	// parties
	"управляющ", "кредитор", "должник", "участник",
	// general economic terms
	"собственность", "приобретение", "покупка", "инвестиц",
	// paperwork and handover
	"акт", "хранен", "ответственн", "передач", "приемк",
}

// intentKeywords choose the question category; checked in intentOrder priority
var intentKeywords = map[models.Intent][]string{
	models.IntentDocuments: {"документ", "справка", "пакет", "заявка"},
	models.IntentStrategy:  {"стратегия", "выбор", "лота", "ставка"},
	models.IntentLegal:     {"закон", "статья", "фз", "право", "суд"},
	models.IntentProperty:  {"недвижимость", "имущество", "квартира", "дом"},
}

var intentOrder = []models.Intent{
	models.IntentDocuments,
	models.IntentStrategy,
	models.IntentLegal,
	models.IntentProperty,
}
