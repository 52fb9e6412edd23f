package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jogardn/laser-orders/internal/orders"
	"github.com/jogardn/laser-orders/internal/pricing"
	"github.com/jogardn/laser-orders/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const myOrdersLimit = 10

// Callback payloads carried by inline buttons.
const (
	cbMenu       = "menu"
	cbNewOrder   = "new"
	cbMyOrders   = "orders"
	cbPrices     = "prices"
	cbContacts   = "contacts"
	cbConfirm    = "confirm"
	cbCancel     = "cancel"
	cbService    = "svc:"
	cbMaterial   = "mat:"
	cbTier       = "tier:"
	cbComplexity = "cx:"
)

// OrderAPI is the order service as seen by the bot.
type OrderAPI interface {
	CreateOrder(ctx context.Context, order models.Order) (*models.Order, error)
	FindByPhone(ctx context.Context, phone string) ([]models.Order, error)
	GetOrder(ctx context.Context, identifier string) (*models.Order, error)
}

type Contact struct {
	Phone     string
	FirstName string
	LastName  string
}

// Inbound is one user action: a message, a shared contact or a button press.
type Inbound struct {
	UserID    int64
	ChatID    int64
	FirstName string
	Text      string
	Callback  string
	Contact   *Contact
}

type Button struct {
	Text string
	Data string
	URL  string
}

// Reply is one outgoing message. Buttons render as an inline keyboard.
type Reply struct {
	Text           string
	Buttons        [][]Button
	RequestContact bool
	RemoveKeyboard bool
}

type Conversation struct {
	api        OrderAPI
	calc       *pricing.Calculator
	store      SessionStore
	websiteURL string
	validate   *validator.Validate
	logger     *logrus.Logger
}

func NewConversation(api OrderAPI, calc *pricing.Calculator, store SessionStore, websiteURL string, logger *logrus.Logger) *Conversation {
	return &Conversation{
		api:        api,
		calc:       calc,
		store:      store,
		websiteURL: websiteURL,
		validate:   validator.New(),
		logger:     logger,
	}
}

func (c *Conversation) Handle(ctx context.Context, in Inbound) []Reply {
	text := strings.TrimSpace(in.Text)

	switch {
	case strings.HasPrefix(text, "/start"):
		c.store.Delete(in.UserID)
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/start"))
		if strings.HasPrefix(payload, cartPrefix) {
			session := &Session{UserID: in.UserID}
			replies := c.startCart(session, in.FirstName, strings.TrimPrefix(payload, cartPrefix))
			if session.Step != StepIdle {
				c.store.Save(session)
			}
			return replies
		}
		return []Reply{c.welcome(in.FirstName)}
	case text == "/cancel":
		c.store.Delete(in.UserID)
		return []Reply{{Text: "❌ Дію скасовано.", Buttons: mainMenu(), RemoveKeyboard: true}}
	case text == "/help":
		return []Reply{help()}
	case text == "/order" || strings.HasPrefix(text, "/order "):
		return []Reply{c.orderStatus(ctx, strings.TrimSpace(strings.TrimPrefix(text, "/order")))}
	}

	session, ok := c.store.Get(in.UserID)
	if !ok {
		session = &Session{UserID: in.UserID}
	}

	var replies []Reply
	switch {
	case in.Callback != "":
		replies = c.onCallback(ctx, session, in.Callback)
	case in.Contact != nil:
		replies = c.onContact(ctx, session, *in.Contact)
	default:
		replies = c.onText(ctx, session, text)
	}

	if session.Step == StepIdle && session.Phone == "" {
		c.store.Delete(in.UserID)
	} else {
		c.store.Save(session)
	}
	return replies
}

func (c *Conversation) onCallback(ctx context.Context, s *Session, data string) []Reply {
	switch {
	case data == cbMenu:
		s.Step = StepIdle
		return []Reply{{Text: "🏠 <b>Головне меню</b>\n\nОберіть потрібну дію:", Buttons: mainMenu()}}
	case data == cbNewOrder:
		s.Step = StepService
		s.Draft = Draft{}
		return []Reply{{Text: "🛒 <b>Нове замовлення</b>\n\nЯка послуга вас цікавить?", Buttons: serviceMenu()}}
	case data == cbMyOrders:
		if s.Phone == "" {
			s.Step = StepLookupPhone
			return []Reply{askPhone("Щоб знайти ваші замовлення, поділіться номером телефону або введіть його.")}
		}
		return c.myOrders(ctx, s)
	case data == cbPrices:
		return []Reply{c.priceList()}
	case data == cbContacts:
		return []Reply{c.contacts()}
	case data == cbCancel:
		s.Step = StepIdle
		s.Draft = Draft{}
		return []Reply{{Text: "❌ Замовлення скасовано.", Buttons: mainMenu()}}
	case data == cbConfirm:
		if s.Step != StepConfirm {
			return []Reply{{Text: "Немає замовлення для підтвердження. Почніть спочатку.", Buttons: mainMenu()}}
		}
		return c.submit(ctx, s)
	case strings.HasPrefix(data, cbService) && s.Step == StepService:
		return c.chooseService(s, models.ServiceType(strings.TrimPrefix(data, cbService)))
	case strings.HasPrefix(data, cbMaterial) && s.Step == StepMaterial:
		return c.chooseMaterial(s, strings.TrimPrefix(data, cbMaterial))
	case strings.HasPrefix(data, cbTier) && s.Step == StepTier:
		return c.chooseTier(s, strings.TrimPrefix(data, cbTier))
	case strings.HasPrefix(data, cbComplexity) && s.Step == StepComplexity:
		return c.onText(ctx, s, strings.TrimPrefix(data, cbComplexity))
	}
	return []Reply{{Text: "Ця кнопка вже неактуальна. Продовжіть з останнього кроку або натисніть /start."}}
}

func (c *Conversation) onContact(ctx context.Context, s *Session, contact Contact) []Reply {
	phone := normalizePhone(contact.Phone)
	switch s.Step {
	case StepPhone:
		s.Draft.Phone = phone
		s.Phone = phone
		if s.Draft.Name == "" {
			s.Draft.Name = strings.TrimSpace(contact.FirstName + " " + contact.LastName)
		}
		if s.Draft.Name == "" {
			s.Step = StepName
			return []Reply{{Text: "✅ Контакт отримано!\n\nЯк до вас звертатися?", RemoveKeyboard: true}}
		}
		s.Step = StepEmail
		return []Reply{{Text: "✅ Контакт отримано!\n\nВведіть ваш email:", RemoveKeyboard: true}}
	case StepLookupPhone:
		s.Phone = phone
		s.Step = StepIdle
		return c.myOrders(ctx, s)
	}
	return []Reply{{Text: "Контакт зараз не потрібен. Натисніть /start, щоб відкрити меню.", RemoveKeyboard: true}}
}

func (c *Conversation) onText(ctx context.Context, s *Session, text string) []Reply {
	switch s.Step {
	case StepQuantity:
		n, err := strconv.Atoi(text)
		if err != nil || n <= 0 {
			return []Reply{{Text: "❌ Вкажіть кількість цілим числом більше нуля."}}
		}
		s.Draft.Quantity = n
		return c.askPhoneStep(s)

	case StepArea:
		area, ok := positiveDecimal(text)
		if !ok {
			return []Reply{{Text: "❌ Вкажіть площу гравіювання в мм² числом більше нуля."}}
		}
		s.Draft.Area = area
		s.Step = StepComplexity
		return []Reply{{
			Text: "Оцініть складність малюнка у відсотках (1–100) або оберіть варіант:",
			Buttons: [][]Button{{
				{Text: "Проста 30%", Data: cbComplexity + "30"},
				{Text: "Середня 50%", Data: cbComplexity + "50"},
				{Text: "Складна 80%", Data: cbComplexity + "80"},
			}},
		}}

	case StepComplexity:
		cx, ok := positiveDecimal(strings.TrimSuffix(text, "%"))
		if !ok || cx.GreaterThan(decimal.NewFromInt(100)) {
			return []Reply{{Text: "❌ Складність має бути числом від 1 до 100."}}
		}
		s.Draft.Complexity = cx
		return c.askPhoneStep(s)

	case StepLength:
		length, ok := positiveDecimal(text)
		if !ok {
			return []Reply{{Text: "❌ Вкажіть довжину різу в метрах числом більше нуля."}}
		}
		s.Draft.Length = length
		s.Step = StepDetailCount
		return []Reply{{Text: "Скільки окремих деталей потрібно вирізати?"}}

	case StepDetailCount:
		n, err := strconv.Atoi(text)
		if err != nil || n < 0 {
			return []Reply{{Text: "❌ Вкажіть кількість деталей цілим числом."}}
		}
		s.Draft.DetailCount = n
		return c.askPhoneStep(s)

	case StepPhone, StepLookupPhone:
		phone := normalizePhone(text)
		if n := len(orders.OnlyDigits(phone)); n < 10 || n > 15 {
			return []Reply{{Text: "❌ Невірний номер телефону. Приклад: +380501234567"}}
		}
		s.Phone = phone
		if s.Step == StepLookupPhone {
			s.Step = StepIdle
			return c.myOrders(ctx, s)
		}
		s.Draft.Phone = phone
		s.Step = StepName
		return []Reply{{Text: "✅ Телефон збережено.\n\nЯк до вас звертатися?", RemoveKeyboard: true}}

	case StepName:
		if text == "" || len([]rune(text)) > 200 {
			return []Reply{{Text: "❌ Вкажіть ваше ім'я."}}
		}
		s.Draft.Name = text
		s.Step = StepEmail
		return []Reply{{Text: "Введіть ваш email:"}}

	case StepEmail:
		if err := c.validate.Var(text, "required,email"); err != nil {
			return []Reply{{Text: "❌ Невірний формат email. Спробуйте ще раз:"}}
		}
		s.Draft.Email = strings.ToLower(text)
		s.Step = StepCity
		return []Reply{{Text: "✅ Email отримано!\n\nВведіть назву вашого міста:"}}

	case StepCity:
		if text == "" {
			return []Reply{{Text: "❌ Вкажіть місто доставки."}}
		}
		s.Draft.City = text
		s.Step = StepDescription
		return []Reply{{Text: "📝 Опишіть ваше замовлення: що зробити, розміри, побажання щодо макету."}}

	case StepDescription:
		if text == "" {
			return []Reply{{Text: "❌ Опис не може бути порожнім."}}
		}
		s.Draft.Description = text
		return c.summary(s)

	case StepMaterial, StepTier, StepService:
		return []Reply{{Text: "Оберіть варіант кнопкою вище або натисніть /cancel."}}
	}

	return []Reply{{Text: "Не зрозумів вас. Натисніть /start, щоб відкрити меню.", Buttons: mainMenu()}}
}

func (c *Conversation) chooseService(s *Session, service models.ServiceType) []Reply {
	rules := c.calc.Rules()
	s.Draft = Draft{Service: service}

	switch service {
	case models.ServiceEngraving:
		s.Step = StepMaterial
		return []Reply{{Text: "✨ <b>Лазерне гравіювання</b>\n\nОберіть матеріал:", Buttons: optionButtons(rules.EngravingMaterials(), cbMaterial)}}
	case models.ServiceCutting:
		s.Step = StepMaterial
		return []Reply{{Text: "✂️ <b>Лазерна різка</b>\n\nОберіть матеріал:", Buttons: optionButtons(rules.CuttingMaterials(), cbMaterial)}}
	case models.ServiceDesign:
		return c.askPhoneStep(s)
	case models.ServiceShop:
		s.Step = StepIdle
		s.Draft = Draft{}
		reply := Reply{Text: "🛍 Готові вироби замовляйте в нашому магазині на сайті."}
		if c.websiteURL != "" {
			reply.Buttons = [][]Button{{{Text: "Відкрити магазин", URL: strings.TrimRight(c.websiteURL, "/") + "/shop"}}, {{Text: "⬅️ Меню", Data: cbMenu}}}
		}
		return []Reply{reply}
	}
	s.Step = StepService
	return []Reply{{Text: "Оберіть послугу зі списку:", Buttons: serviceMenu()}}
}

// startCart turns a website cart passed through a /start deep link into a
// shop draft and continues with the contact steps.
func (c *Conversation) startCart(s *Session, firstName, encoded string) []Reply {
	items, err := decodeCart(encoded)
	if err != nil {
		c.logger.WithError(err).WithField("user_id", s.UserID).Warn("Unreadable shop cart in deep link")
		welcome := c.welcome(firstName)
		welcome.Text = "❌ Не вдалося прочитати кошик з сайту. Оформіть замовлення ще раз або скористайтеся меню.\n\n" + welcome.Text
		return []Reply{welcome}
	}

	s.Draft = Draft{Service: models.ServiceShop, Items: items}
	var b strings.Builder
	b.WriteString("🛍 <b>Замовлення з магазину</b>\n\n<b>Товари:</b>\n")
	total := decimal.Zero
	for _, item := range items {
		line := item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		total = total.Add(line)
		fmt.Fprintf(&b, "• %s × %d — %s ₴\n", html.EscapeString(item.Name), item.Quantity, line.StringFixed(2))
	}
	fmt.Fprintf(&b, "\n<b>💰 Сума:</b> %s ₴", total.StringFixed(2))

	return append([]Reply{{Text: b.String()}}, c.askPhoneStep(s)...)
}

func (c *Conversation) chooseMaterial(s *Session, material string) []Reply {
	rules := c.calc.Rules()

	switch s.Draft.Service {
	case models.ServiceEngraving:
		if _, ok := rules.Engraving.Materials[material]; !ok {
			return []Reply{{Text: "Оберіть матеріал зі списку:", Buttons: optionButtons(rules.EngravingMaterials(), cbMaterial)}}
		}
		s.Draft.Material = material
		if c.calc.EngravingMode() == pricing.ModeFixed {
			s.Step = StepTier
			return []Reply{{Text: "Оберіть розмір виробу:", Buttons: optionButtons(rules.EngravingTiers(), cbTier)}}
		}
		s.Step = StepArea
		return []Reply{{Text: "Вкажіть площу гравіювання в мм² (наприклад, 5000 для 100×50 мм):"}}
	case models.ServiceCutting:
		if _, ok := rules.Cutting.Materials[material]; !ok {
			return []Reply{{Text: "Оберіть матеріал зі списку:", Buttons: optionButtons(rules.CuttingMaterials(), cbMaterial)}}
		}
		s.Draft.Material = material
		s.Step = StepLength
		return []Reply{{Text: "Вкажіть загальну довжину різу в метрах:"}}
	}
	s.Step = StepService
	return []Reply{{Text: "Оберіть послугу зі списку:", Buttons: serviceMenu()}}
}

func (c *Conversation) chooseTier(s *Session, tier string) []Reply {
	rules := c.calc.Rules()
	if _, ok := rules.Engraving.Tiers[tier]; !ok {
		return []Reply{{Text: "Оберіть розмір зі списку:", Buttons: optionButtons(rules.EngravingTiers(), cbTier)}}
	}
	s.Draft.Tier = tier
	s.Step = StepQuantity
	return []Reply{{Text: "Скільки штук потрібно?"}}
}

func (c *Conversation) askPhoneStep(s *Session) []Reply {
	if s.Phone != "" {
		s.Draft.Phone = s.Phone
		s.Step = StepName
		return []Reply{{Text: "Як до вас звертатися?"}}
	}
	s.Step = StepPhone
	return []Reply{askPhone("📱 Поділіться контактом або введіть номер телефону:")}
}

func (c *Conversation) summary(s *Session) []Reply {
	details := s.Draft.details()
	req, err := pricing.RequestFromDetails(details)
	if err == nil {
		var quote pricing.Quote
		quote, err = c.calc.Quote(req)
		if err == nil {
			s.Draft.Quote = &quote
		}
	}
	if err != nil {
		c.logger.WithError(err).WithField("service", s.Draft.Service).Warn("Bot draft could not be quoted")
		s.Step = StepIdle
		s.Draft = Draft{}
		return []Reply{{Text: "❌ Не вдалося розрахувати вартість. Спробуйте оформити замовлення ще раз.", Buttons: mainMenu()}}
	}

	s.Step = StepConfirm
	return []Reply{{
		Text: formatSummary(s.Draft, c.calc.Rules()),
		Buttons: [][]Button{{
			{Text: "✅ Підтвердити", Data: cbConfirm},
			{Text: "❌ Скасувати", Data: cbCancel},
		}},
	}}
}

func (c *Conversation) submit(ctx context.Context, s *Session) []Reply {
	d := s.Draft
	order := models.Order{
		Customer: models.Customer{
			Name:  d.Name,
			Email: d.Email,
			Phone: d.Phone,
			City:  d.City,
		},
		Details: d.details(),
		Notes:   "Замовлення через Telegram-бот",
	}
	if d.Quote != nil {
		order.Pricing = d.Quote.Pricing()
	}
	if d.Service == models.ServiceShop && d.Description != "" {
		order.Notes += "\n" + d.Description
	}

	created, err := c.api.CreateOrder(ctx, order)
	if err != nil {
		logger := c.logger.WithError(err).WithField("user_id", s.UserID)
		var invalid *orders.ValidationError
		if errors.As(err, &invalid) {
			logger.Warn("Order service rejected bot order")
			s.Step = StepIdle
			s.Draft = Draft{}
			return []Reply{{Text: "❌ Замовлення відхилено: " + html.EscapeString(strings.Join(invalid.Problems, "; ")), Buttons: mainMenu()}}
		}
		logger.Error("Failed to create order from bot")
		return []Reply{{
			Text:    "❌ Не вдалося створити замовлення. Спробуйте ще раз трохи згодом.",
			Buttons: [][]Button{{{Text: "🔁 Повторити", Data: cbConfirm}, {Text: "❌ Скасувати", Data: cbCancel}}},
		}}
	}

	c.logger.WithFields(logrus.Fields{
		"user_id":      s.UserID,
		"order_number": created.OrderNumber,
	}).Info("Order created from bot")

	s.Step = StepIdle
	s.Draft = Draft{}
	return []Reply{{
		Text: fmt.Sprintf("✅ <b>Замовлення прийнято!</b>\n\n📋 Номер замовлення: <b>%s</b>\n💰 Сума: %s %s\n\nМи зв'яжемося з вами найближчим часом. Дякуємо! 🎉",
			html.EscapeString(created.OrderNumber), created.Pricing.TotalPrice.StringFixed(2), html.EscapeString(created.Pricing.Currency)),
		Buttons: mainMenu(),
	}}
}

func (c *Conversation) myOrders(ctx context.Context, s *Session) []Reply {
	list, err := c.api.FindByPhone(ctx, s.Phone)
	if err != nil && !errors.Is(err, orders.ErrNotFound) {
		c.logger.WithError(err).WithField("user_id", s.UserID).Error("Failed to look up orders from bot")
		return []Reply{{Text: "❌ Не вдалося отримати замовлення. Спробуйте пізніше.", Buttons: mainMenu(), RemoveKeyboard: true}}
	}
	if len(list) == 0 {
		return []Reply{{Text: "📦 У вас поки немає замовлень.", Buttons: mainMenu(), RemoveKeyboard: true}}
	}
	if len(list) > myOrdersLimit {
		list = list[:myOrdersLimit]
	}

	var b strings.Builder
	b.WriteString("📦 <b>Ваші замовлення:</b>\n\n")
	for i, o := range list {
		fmt.Fprintf(&b, "%d. %s <b>%s</b>\n", i+1, statusEmoji(o.Status), html.EscapeString(o.OrderNumber))
		fmt.Fprintf(&b, "   %s · %s %s · %s\n\n", serviceName(o.Service()), o.Pricing.TotalPrice.StringFixed(2),
			html.EscapeString(o.Pricing.Currency), o.CreatedAt.Format("02.01.2006"))
	}
	return []Reply{{Text: b.String(), Buttons: mainMenu(), RemoveKeyboard: true}}
}

func (c *Conversation) orderStatus(ctx context.Context, number string) Reply {
	if number == "" {
		return Reply{Text: "Вкажіть номер замовлення, наприклад: /order PJ-01HX3K4M5N-6P7Q8R9S"}
	}
	order, err := c.api.GetOrder(ctx, number)
	if errors.Is(err, orders.ErrNotFound) {
		return Reply{Text: "🔍 Замовлення " + html.EscapeString(number) + " не знайдено.", Buttons: mainMenu()}
	}
	if err != nil {
		c.logger.WithError(err).WithField("order_number", number).Error("Failed to look up order from bot")
		return Reply{Text: "❌ Не вдалося отримати замовлення. Спробуйте пізніше.", Buttons: mainMenu()}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📋 <b>%s</b>\n\n", html.EscapeString(order.OrderNumber))
	fmt.Fprintf(&b, "Послуга: %s\n", serviceName(order.Service()))
	fmt.Fprintf(&b, "Статус: %s %s\n", statusEmoji(order.Status), html.EscapeString(string(order.Status)))
	fmt.Fprintf(&b, "Оплата: %s\n", html.EscapeString(string(order.Payment.Status)))
	fmt.Fprintf(&b, "Сума: %s %s\n", order.Pricing.TotalPrice.StringFixed(2), html.EscapeString(order.Pricing.Currency))
	if d := order.Delivery; d != nil && d.TrackingNumber != "" {
		fmt.Fprintf(&b, "ТТН: %s\n", html.EscapeString(d.TrackingNumber))
	}
	return Reply{Text: b.String(), Buttons: mainMenu()}
}

func (c *Conversation) welcome(firstName string) Reply {
	name := html.EscapeString(firstName)
	if name == "" {
		name = "друже"
	}
	return Reply{
		Text: fmt.Sprintf("👋 Вітаю, %s!\n\nЯ бот майстерні <b>Pro Jet</b>: лазерне гравіювання, різка та дизайн.\n"+
			"Розрахую вартість і оформлю замовлення просто тут.\n\nЩо бажаєте зробити?", name),
		Buttons: mainMenu(),
	}
}

func help() Reply {
	return Reply{
		Text: "📖 <b>Довідка</b>\n\n/start  головне меню\n/cancel  скасувати поточну дію\n/help  ця довідка\n/order &lt;номер&gt;  статус замовлення\n\n" +
			"Натисніть «🛒 Нове замовлення», оберіть послугу та дайте відповідь на кілька запитань.",
		Buttons: mainMenu(),
	}
}

func (c *Conversation) priceList() Reply {
	rules := c.calc.Rules()
	var b strings.Builder
	b.WriteString("💰 <b>Прайс-лист</b>\n\n")
	if c.calc.EngravingMode() == pricing.ModeFixed {
		b.WriteString("<b>✨ Гравіювання (за штуку):</b>\n")
		for _, opt := range rules.EngravingTiers() {
			fmt.Fprintf(&b, "• %s: %s %s\n", html.EscapeString(opt.Name), rules.Engraving.Tiers[opt.Key].UnitPrice.StringFixed(2), rules.Currency)
		}
	} else {
		b.WriteString("<b>✨ Гравіювання:</b> за площею та складністю\n")
	}
	b.WriteString("\n<b>✂️ Різка (за метр):</b>\n")
	for _, opt := range rules.CuttingMaterials() {
		m := rules.Cutting.Materials[opt.Key]
		perMeter := rules.HourlyCost.Mul(m.TimePerMeter).Add(m.MarginPerMeter).Round(2)
		fmt.Fprintf(&b, "• %s: %s %s\n", html.EscapeString(opt.Name), perMeter.StringFixed(2), rules.Currency)
	}
	fmt.Fprintf(&b, "\n<b>🎨 Дизайн:</b> від %s %s\n", rules.Design.BasePrice.StringFixed(0), rules.Currency)
	fmt.Fprintf(&b, "\n<i>Мінімальне замовлення %s %s. Знижка %s%% на великі обсяги.</i>",
		rules.MinimumOrder.StringFixed(0), rules.Currency, rules.VolumeDiscountPercent.String())
	return Reply{Text: b.String(), Buttons: mainMenu()}
}

func (c *Conversation) contacts() Reply {
	text := "📞 <b>Контакти</b>\n\nEmail: info@projet.ua\nПн-Пт: 9:00 - 18:00, Сб: 10:00 - 15:00"
	if c.websiteURL != "" {
		text += "\nСайт: " + html.EscapeString(c.websiteURL)
	}
	return Reply{Text: text, Buttons: mainMenu()}
}

func (d Draft) details() models.Details {
	switch d.Service {
	case models.ServiceEngraving:
		return models.EngravingDetails{
			Material:    d.Material,
			Size:        d.Tier,
			Quantity:    d.Quantity,
			Area:        d.Area,
			Complexity:  d.Complexity,
			Description: d.Description,
		}
	case models.ServiceCutting:
		return models.CuttingDetails{
			Material:    d.Material,
			Length:      d.Length,
			DetailCount: d.DetailCount,
			Description: d.Description,
		}
	case models.ServiceDesign:
		return models.DesignDetails{Description: d.Description}
	case models.ServiceShop:
		return models.ShopDetails{Items: d.Items}
	}
	return nil
}

func formatSummary(d Draft, rules pricing.Rules) string {
	var b strings.Builder
	b.WriteString("📋 <b>Перевірте замовлення</b>\n\n")
	fmt.Fprintf(&b, "<b>Послуга:</b> %s\n", serviceName(d.Service))

	switch d.Service {
	case models.ServiceEngraving:
		fmt.Fprintf(&b, "Матеріал: %s\n", html.EscapeString(rules.Engraving.Materials[d.Material].Name))
		if d.Tier != "" {
			fmt.Fprintf(&b, "Виріб: %s × %d\n", html.EscapeString(rules.Engraving.Tiers[d.Tier].Name), d.Quantity)
		} else {
			fmt.Fprintf(&b, "Площа: %s мм², складність %s%%\n", d.Area.String(), d.Complexity.String())
		}
	case models.ServiceCutting:
		fmt.Fprintf(&b, "Матеріал: %s\n", html.EscapeString(rules.Cutting.Materials[d.Material].Name))
		fmt.Fprintf(&b, "Довжина різу: %s м, деталей: %d\n", d.Length.String(), d.DetailCount)
	case models.ServiceShop:
		for _, item := range d.Items {
			fmt.Fprintf(&b, "• %s × %d\n", html.EscapeString(item.Name), item.Quantity)
		}
	}

	fmt.Fprintf(&b, "\n👤 %s\n📱 %s\n📧 %s\n🏙 %s\n", html.EscapeString(d.Name), html.EscapeString(d.Phone),
		html.EscapeString(d.Email), html.EscapeString(d.City))
	fmt.Fprintf(&b, "\n<b>Опис:</b>\n%s\n", html.EscapeString(d.Description))

	if q := d.Quote; q != nil {
		b.WriteString("\n")
		if q.MinimumApplied {
			fmt.Fprintf(&b, "Мінімальне замовлення: %s %s\n", q.Floored.StringFixed(2), q.Currency)
		}
		if q.Discount.IsPositive() {
			fmt.Fprintf(&b, "Знижка %s%%: −%s %s\n", q.DiscountPercent.String(), q.Discount.StringFixed(2), q.Currency)
		}
		fmt.Fprintf(&b, "💰 <b>Орієнтовна вартість: %s %s</b>\n", q.Total.StringFixed(2), q.Currency)
	}
	b.WriteString("\nВсе вірно?")
	return b.String()
}

func mainMenu() [][]Button {
	return [][]Button{
		{{Text: "🛒 Нове замовлення", Data: cbNewOrder}, {Text: "📦 Мої замовлення", Data: cbMyOrders}},
		{{Text: "💰 Прайс-лист", Data: cbPrices}, {Text: "📞 Контакти", Data: cbContacts}},
	}
}

func serviceMenu() [][]Button {
	return [][]Button{
		{{Text: "✨ Лазерне гравіювання", Data: cbService + string(models.ServiceEngraving)}},
		{{Text: "✂️ Лазерна різка", Data: cbService + string(models.ServiceCutting)}},
		{{Text: "🎨 Дизайн", Data: cbService + string(models.ServiceDesign)}},
		{{Text: "🛍 Магазин", Data: cbService + string(models.ServiceShop)}},
		{{Text: "⬅️ Назад", Data: cbMenu}},
	}
}

func optionButtons(options []pricing.Option, prefix string) [][]Button {
	rows := make([][]Button, 0, len(options)+1)
	for _, opt := range options {
		rows = append(rows, []Button{{Text: opt.Name, Data: prefix + opt.Key}})
	}
	return append(rows, []Button{{Text: "❌ Скасувати", Data: cbCancel}})
}

func askPhone(text string) Reply {
	return Reply{Text: text, RequestContact: true}
}

func positiveDecimal(text string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(text), ",", "."))
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}

func normalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	digits := orders.OnlyDigits(phone)
	if digits == "" {
		return phone
	}
	return "+" + digits
}

func serviceName(s models.ServiceType) string {
	switch s {
	case models.ServiceEngraving:
		return "Лазерне гравіювання"
	case models.ServiceCutting:
		return "Лазерна різка"
	case models.ServiceDesign:
		return "Дизайн"
	case models.ServiceShop:
		return "Магазин"
	case models.ServiceConsultation:
		return "Консультація"
	}
	return string(s)
}

func statusEmoji(s models.OrderStatus) string {
	switch s {
	case models.StatusNew:
		return "🆕"
	case models.StatusAccepted:
		return "✅"
	case models.StatusInProgress:
		return "⏳"
	case models.StatusReady:
		return "📦"
	case models.StatusShipped:
		return "🚚"
	case models.StatusCompleted:
		return "🏁"
	case models.StatusCancelled:
		return "❌"
	}
	return "❓"
}
