package bot

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jogardn/laser-orders/internal/orders"
	"github.com/jogardn/laser-orders/internal/pricing"
	"github.com/jogardn/laser-orders/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userID = int64(4242)

type fakeOrderAPI struct {
	created   []models.Order
	createErr error
	byPhone   []models.Order
	phones    []string
}

func (f *fakeOrderAPI) CreateOrder(ctx context.Context, order models.Order) (*models.Order, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, order)
	order.OrderNumber = "PJ-01HX3K4M5N-6P7Q8R9S"
	return &order, nil
}

func (f *fakeOrderAPI) GetOrder(ctx context.Context, identifier string) (*models.Order, error) {
	for _, o := range f.byPhone {
		if o.OrderNumber == identifier {
			return &o, nil
		}
	}
	return nil, orders.ErrNotFound
}

func (f *fakeOrderAPI) FindByPhone(ctx context.Context, phone string) ([]models.Order, error) {
	f.phones = append(f.phones, phone)
	return f.byPhone, nil
}

func newConversation(t *testing.T, api OrderAPI, mode pricing.Mode) (*Conversation, *CacheStore) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	rules, err := pricing.DefaultRules().WithEngravingMode(mode)
	require.NoError(t, err)
	store := NewCacheStore(time.Minute)
	return NewConversation(api, pricing.NewCalculator(rules), store, "https://projet.example.com", logger), store
}

func text(s string) Inbound     { return Inbound{UserID: userID, ChatID: userID, FirstName: "Olena", Text: s} }
func press(data string) Inbound { return Inbound{UserID: userID, ChatID: userID, Callback: data} }

func say(t *testing.T, c *Conversation, in Inbound) Reply {
	t.Helper()
	replies := c.Handle(context.Background(), in)
	require.Len(t, replies, 1)
	return replies[0]
}

func currentStep(t *testing.T, store *CacheStore) Step {
	t.Helper()
	s, ok := store.Get(userID)
	require.True(t, ok, "session must exist")
	return s.Step
}

func TestCuttingOrderFlow(t *testing.T) {
	api := &fakeOrderAPI{}
	c, store := newConversation(t, api, pricing.ModeFixed)

	reply := say(t, c, text("/start"))
	assert.Contains(t, reply.Text, "Вітаю, Olena")
	assert.NotEmpty(t, reply.Buttons)

	say(t, c, press(cbNewOrder))
	assert.Equal(t, StepService, currentStep(t, store))

	reply = say(t, c, press(cbService+"cutting"))
	assert.Equal(t, StepMaterial, currentStep(t, store))
	assert.Equal(t, cbMaterial+"acrylic3", reply.Buttons[0][0].Data)

	say(t, c, press(cbMaterial+"plywood3"))
	assert.Equal(t, StepLength, currentStep(t, store))

	reply = say(t, c, text("-5"))
	assert.Contains(t, reply.Text, "❌")
	assert.Equal(t, StepLength, currentStep(t, store))

	say(t, c, text("600"))
	reply = say(t, c, text("10"))
	assert.True(t, reply.RequestContact)
	assert.Equal(t, StepPhone, currentStep(t, store))

	reply = say(t, c, Inbound{UserID: userID, ChatID: userID, Contact: &Contact{Phone: "380501112233", FirstName: "Olena", LastName: "Koval"}})
	assert.True(t, reply.RemoveKeyboard)
	assert.Equal(t, StepEmail, currentStep(t, store))

	say(t, c, text("Olena@Example.com"))
	say(t, c, text("Kyiv"))
	reply = say(t, c, text("Box parts for a bird house"))
	assert.Equal(t, StepConfirm, currentStep(t, store))
	assert.Contains(t, reply.Text, "7608.35 UAH")
	assert.Contains(t, reply.Text, "Знижка 15%")
	assert.Equal(t, cbConfirm, reply.Buttons[0][0].Data)

	reply = say(t, c, press(cbConfirm))
	assert.Contains(t, reply.Text, "PJ-01HX3K4M5N-6P7Q8R9S")

	require.Len(t, api.created, 1)
	order := api.created[0]
	assert.Equal(t, models.Customer{Name: "Olena Koval", Email: "olena@example.com", Phone: "+380501112233", City: "Kyiv"}, order.Customer)
	details, ok := order.Details.(models.CuttingDetails)
	require.True(t, ok)
	assert.Equal(t, "plywood3", details.Material)
	assert.True(t, details.Length.Equal(decimal.NewFromInt(600)))
	assert.Equal(t, 10, details.DetailCount)
	assert.Equal(t, "7608.35", order.Pricing.TotalPrice.StringFixed(2))

	session, ok := store.Get(userID)
	require.True(t, ok)
	assert.Equal(t, StepIdle, session.Step)
	assert.Equal(t, "+380501112233", session.Phone)
}

func TestFixedEngravingFlowWithTypedPhone(t *testing.T) {
	api := &fakeOrderAPI{}
	c, store := newConversation(t, api, pricing.ModeFixed)

	say(t, c, press(cbNewOrder))
	say(t, c, press(cbService+"engraving"))
	reply := say(t, c, press(cbMaterial+"wood"))
	assert.Equal(t, StepTier, currentStep(t, store))
	assert.Equal(t, cbTier+"board_200", reply.Buttons[0][0].Data)

	say(t, c, press(cbTier+"sign_100"))
	reply = say(t, c, text("three"))
	assert.Contains(t, reply.Text, "❌")
	say(t, c, text("3"))

	reply = say(t, c, text("123"))
	assert.Contains(t, reply.Text, "Невірний номер")
	say(t, c, text("+38 (050) 111-22-33"))
	assert.Equal(t, StepName, currentStep(t, store))

	say(t, c, text("Olena Koval"))
	reply = say(t, c, text("not-an-email"))
	assert.Contains(t, reply.Text, "email")
	assert.Equal(t, StepEmail, currentStep(t, store))
	say(t, c, text("olena@example.com"))
	say(t, c, text("Lviv"))
	reply = say(t, c, text("Logo on three signs"))
	assert.Contains(t, reply.Text, "360.00 UAH")

	say(t, c, press(cbConfirm))
	require.Len(t, api.created, 1)
	details := api.created[0].Details.(models.EngravingDetails)
	assert.Equal(t, "sign_100", details.Size)
	assert.Equal(t, 3, details.Quantity)
	assert.Equal(t, "+380501112233", api.created[0].Customer.Phone)
}

func TestAreaEngravingAsksForAreaAndComplexity(t *testing.T) {
	c, store := newConversation(t, &fakeOrderAPI{}, pricing.ModeArea)

	say(t, c, press(cbNewOrder))
	say(t, c, press(cbService+"engraving"))
	say(t, c, press(cbMaterial+"acrylic"))
	assert.Equal(t, StepArea, currentStep(t, store))

	reply := say(t, c, text("5000"))
	assert.Equal(t, StepComplexity, currentStep(t, store))
	require.Len(t, reply.Buttons, 1)

	reply = say(t, c, text("150"))
	assert.Contains(t, reply.Text, "❌")

	reply = say(t, c, press(cbComplexity+"50"))
	assert.True(t, reply.RequestContact)

	session, _ := store.Get(userID)
	assert.True(t, session.Draft.Complexity.Equal(decimal.NewFromInt(50)))
	assert.True(t, session.Draft.Area.Equal(decimal.NewFromInt(5000)))
}

func TestDesignSkipsMaterialSteps(t *testing.T) {
	c, store := newConversation(t, &fakeOrderAPI{}, pricing.ModeFixed)

	say(t, c, press(cbNewOrder))
	reply := say(t, c, press(cbService+"design"))
	assert.True(t, reply.RequestContact)
	assert.Equal(t, StepPhone, currentStep(t, store))
}

func TestKnownPhoneIsNotAskedAgain(t *testing.T) {
	c, store := newConversation(t, &fakeOrderAPI{}, pricing.ModeFixed)
	store.Save(&Session{UserID: userID, Phone: "+380501112233"})

	say(t, c, press(cbNewOrder))
	reply := say(t, c, press(cbService+"design"))
	assert.False(t, reply.RequestContact)
	assert.Equal(t, StepName, currentStep(t, store))
}

func TestShopRedirectsToWebsite(t *testing.T) {
	c, _ := newConversation(t, &fakeOrderAPI{}, pricing.ModeFixed)

	say(t, c, press(cbNewOrder))
	reply := say(t, c, press(cbService+"shop"))
	assert.Equal(t, "https://projet.example.com/shop", reply.Buttons[0][0].URL)
}

func TestStartWithCartCreatesShopOrder(t *testing.T) {
	api := &fakeOrderAPI{}
	c, store := newConversation(t, api, pricing.ModeFixed)

	cart := `{"items":[{"id":"p-1","name":"Coaster","price":120,"quantity":2},{"productId":"p-2","name":"Keychain","price":45,"quantity":1}],"total":285}`
	encoded := base64.RawURLEncoding.EncodeToString([]byte(cart))

	replies := c.Handle(context.Background(), text("/start order_"+encoded))
	require.Len(t, replies, 2)
	assert.Contains(t, replies[0].Text, "Coaster × 2")
	assert.Contains(t, replies[0].Text, "285.00")
	assert.True(t, replies[1].RequestContact)
	assert.Equal(t, StepPhone, currentStep(t, store))

	say(t, c, Inbound{UserID: userID, ChatID: userID, Contact: &Contact{Phone: "380671234567", FirstName: "Ivan"}})
	assert.Equal(t, StepEmail, currentStep(t, store))
	say(t, c, text("ivan@example.com"))
	say(t, c, text("Odesa"))
	reply := say(t, c, text("Gift wrap please"))
	assert.Contains(t, reply.Text, "Keychain × 1")
	assert.Contains(t, reply.Text, "285.00 UAH")

	say(t, c, press(cbConfirm))
	require.Len(t, api.created, 1)
	order := api.created[0]
	shop, ok := order.Details.(models.ShopDetails)
	require.True(t, ok)
	require.Len(t, shop.Items, 2)
	assert.Equal(t, "p-1", shop.Items[0].ProductID)
	assert.Equal(t, "p-2", shop.Items[1].ProductID)
	assert.Equal(t, "Ivan", order.Customer.Name)
	assert.Contains(t, order.Notes, "Gift wrap please")
	assert.Equal(t, "285.00", order.Pricing.TotalPrice.StringFixed(2))
}

func TestStartWithBrokenCartShowsMenu(t *testing.T) {
	c, store := newConversation(t, &fakeOrderAPI{}, pricing.ModeFixed)

	reply := say(t, c, text("/start order_%%%"))
	assert.Contains(t, reply.Text, "❌")
	assert.NotEmpty(t, reply.Buttons)
	_, ok := store.Get(userID)
	assert.False(t, ok)

	empty := base64.StdEncoding.EncodeToString([]byte(`{"items":[]}`))
	reply = say(t, c, text("/start order_"+empty))
	assert.Contains(t, reply.Text, "❌")
}

func TestDecodeCartAcceptsBothAlphabets(t *testing.T) {
	cart := []byte(`{"items":[{"id":"p-1","name":"Підставка ~?","price":120,"quantity":1}]}`)

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		items, err := decodeCart(enc.EncodeToString(cart))
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "p-1", items[0].ProductID)
	}

	_, err := decodeCart(base64.StdEncoding.EncodeToString([]byte(`{"items":[{"id":"p-1","quantity":0}]}`)))
	assert.Error(t, err)
}

func TestMyOrdersAsksForPhoneAndListsAtMostTen(t *testing.T) {
	api := &fakeOrderAPI{}
	for i := 1; i <= 12; i++ {
		api.byPhone = append(api.byPhone, models.Order{
			OrderNumber: fmt.Sprintf("PJ-%02d", i),
			Details:     models.DesignDetails{},
			Status:      models.StatusNew,
			Pricing:     models.Pricing{TotalPrice: decimal.NewFromInt(500), Currency: "UAH"},
		})
	}
	c, store := newConversation(t, api, pricing.ModeFixed)

	reply := say(t, c, press(cbMyOrders))
	assert.True(t, reply.RequestContact)
	assert.Equal(t, StepLookupPhone, currentStep(t, store))

	reply = say(t, c, Inbound{UserID: userID, ChatID: userID, Contact: &Contact{Phone: "+380501112233"}})
	assert.Equal(t, []string{"+380501112233"}, api.phones)
	assert.Contains(t, reply.Text, "PJ-10")
	assert.NotContains(t, reply.Text, "PJ-11")

	say(t, c, press(cbMyOrders))
	assert.Len(t, api.phones, 2, "remembered phone is reused")
}

func TestOrderStatusCommand(t *testing.T) {
	api := &fakeOrderAPI{byPhone: []models.Order{{
		OrderNumber: "PJ-01HX3K4M5N-6P7Q8R9S",
		Details:     models.CuttingDetails{Material: "plywood3"},
		Status:      models.StatusShipped,
		Payment:     models.Payment{Status: models.PaymentCompleted},
		Pricing:     models.Pricing{TotalPrice: decimal.RequireFromString("7608.35"), Currency: "UAH"},
		Delivery:    &models.Delivery{TrackingNumber: "20450000000001"},
	}}}
	c, _ := newConversation(t, api, pricing.ModeFixed)

	reply := say(t, c, text("/order PJ-01HX3K4M5N-6P7Q8R9S"))
	assert.Contains(t, reply.Text, "🚚 shipped")
	assert.Contains(t, reply.Text, "7608.35 UAH")
	assert.Contains(t, reply.Text, "20450000000001")

	reply = say(t, c, text("/order PJ-NOPE"))
	assert.Contains(t, reply.Text, "не знайдено")

	reply = say(t, c, text("/order"))
	assert.Contains(t, reply.Text, "/order PJ-")
}

func TestCancelClearsSession(t *testing.T) {
	c, store := newConversation(t, &fakeOrderAPI{}, pricing.ModeFixed)

	say(t, c, press(cbNewOrder))
	say(t, c, press(cbService+"cutting"))
	reply := say(t, c, text("/cancel"))
	assert.True(t, reply.RemoveKeyboard)

	_, ok := store.Get(userID)
	assert.False(t, ok)

	reply = say(t, c, press(cbMaterial+"plywood3"))
	assert.Contains(t, reply.Text, "неактуальна")
}

func TestFailedSubmissionCanBeRetried(t *testing.T) {
	api := &fakeOrderAPI{createErr: errors.New("connection refused")}
	c, store := newConversation(t, api, pricing.ModeFixed)
	store.Save(&Session{UserID: userID, Step: StepConfirm, Phone: "+380501112233", Draft: Draft{
		Service: models.ServiceDesign, Name: "Olena", Phone: "+380501112233", Email: "olena@example.com", City: "Kyiv", Description: "Logo",
	}})

	reply := say(t, c, press(cbConfirm))
	assert.Equal(t, cbConfirm, reply.Buttons[0][0].Data)
	assert.Equal(t, StepConfirm, currentStep(t, store))

	api.createErr = &orders.APIError{StatusCode: 400, Message: "Validation failed", Problems: []string{"customer.email is invalid"}}
	reply = say(t, c, press(cbConfirm))
	assert.Contains(t, reply.Text, "customer.email is invalid")
	assert.Equal(t, StepIdle, currentStep(t, store))
}

func TestCacheStoreExpiresSessions(t *testing.T) {
	store := NewCacheStore(50 * time.Millisecond)
	store.Save(&Session{UserID: userID, Step: StepCity})

	s, ok := store.Get(userID)
	require.True(t, ok)
	s.Step = StepConfirm
	again, _ := store.Get(userID)
	assert.Equal(t, StepCity, again.Step, "stored session is not aliased")

	assert.Eventually(t, func() bool {
		_, ok := store.Get(userID)
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestRender(t *testing.T) {
	msgs := render(7, Reply{Text: "phone?", RequestContact: true})
	require.Len(t, msgs, 1)
	keyboard, ok := msgs[0].ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	require.True(t, ok)
	assert.True(t, keyboard.Keyboard[0][0].RequestContact)
	assert.Equal(t, tgbotapi.ModeHTML, msgs[0].ParseMode)

	msgs = render(7, Reply{Text: "done", RemoveKeyboard: true, Buttons: mainMenu()})
	require.Len(t, msgs, 2)
	assert.IsType(t, tgbotapi.ReplyKeyboardRemove{}, msgs[0].ReplyMarkup)
	inline, ok := msgs[1].ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.NotNil(t, inline.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, cbNewOrder, *inline.InlineKeyboard[0][0].CallbackData)

	msgs = render(7, Reply{Text: "shop", Buttons: [][]Button{{{Text: "Open", URL: "https://projet.example.com/shop"}}}})
	inline = msgs[0].ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.NotNil(t, inline.InlineKeyboard[0][0].URL)
	assert.Equal(t, "https://projet.example.com/shop", *inline.InlineKeyboard[0][0].URL)
}

type fakeBotAPI struct {
	updates  chan tgbotapi.Update
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	stopped  bool
}

func (f *fakeBotAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel { return f.updates }
func (f *fakeBotAPI) StopReceivingUpdates()                                        { f.stopped = true }

func (f *fakeBotAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeBotAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func TestTelegramRunnerHandlesUpdates(t *testing.T) {
	logger, _ := test.NewNullLogger()
	c, _ := newConversation(t, &fakeOrderAPI{}, pricing.ModeFixed)
	api := &fakeBotAPI{updates: make(chan tgbotapi.Update, 2)}

	user := &tgbotapi.User{ID: userID, FirstName: "Olena"}
	chat := &tgbotapi.Chat{ID: 99}
	api.updates <- tgbotapi.Update{Message: &tgbotapi.Message{From: user, Chat: chat, Text: "/start"}}
	api.updates <- tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{ID: "cb-1", From: user, Message: &tgbotapi.Message{Chat: chat}, Data: cbNewOrder}}
	close(api.updates)

	require.NoError(t, NewTelegramRunner(api, c, logger).Run(context.Background()))

	require.Len(t, api.sent, 2)
	welcome := api.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, int64(99), welcome.ChatID)
	assert.Contains(t, welcome.Text, "Olena")

	require.Len(t, api.requests, 1)
	answer := api.requests[0].(tgbotapi.CallbackConfig)
	assert.Equal(t, "cb-1", answer.CallbackQueryID)
}

func TestTelegramRunnerStopsOnCancel(t *testing.T) {
	logger, _ := test.NewNullLogger()
	c, _ := newConversation(t, &fakeOrderAPI{}, pricing.ModeFixed)
	api := &fakeBotAPI{updates: make(chan tgbotapi.Update)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, NewTelegramRunner(api, c, logger).Run(ctx))
	assert.True(t, api.stopped)
}
