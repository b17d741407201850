package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vendabot/vendabot/internal/cart"
	"github.com/vendabot/vendabot/internal/catalog"
	"github.com/vendabot/vendabot/internal/nlp"
	"github.com/vendabot/vendabot/internal/transport"
)

// Ledger is the slice of the cart ledger the conversation drives.
type Ledger interface {
	AddItem(ctx context.Context, userID string, productID int64) ([]cart.Item, error)
	RemoveItem(ctx context.Context, userID string, productID int64) ([]cart.Item, error)
	GetCart(ctx context.Context, userID string) ([]cart.Item, error)
}

type Catalog interface {
	List(ctx context.Context) ([]catalog.Product, error)
}

const (
	msgWelcome       = "👋 Olá! Eu sou o *Assistente Virtual da Loja*!\n\nSeja bem-vindo(a)! Gostaria de ver os produtos disponíveis em nossa loja?"
	msgFarewell      = "Até logo! Volte sempre! 👋"
	msgSendOiFirst   = "Por favor, envie \"oi\" primeiro para começarmos!"
	msgDefault       = "Desculpe, não entendi. Pode reformular sua mensagem? 🤔"
	msgRefuseBrowse  = "Tudo bem! Quando quiser ver os produtos, envie a mensagem 'ver produtos' 😊"
	msgRefuseBuy     = "Tudo bem! Quando quiser finalizar a compra, envie a palavra 'checkout' 🛒"
	msgWhichAdd      = "Qual produto você gostaria de adicionar? Digite o nome ou o número do produto."
	msgWhichRemove   = "Qual produto você gostaria de remover? Envie \"ver carrinho\" para ver os itens."
	msgCartEmpty     = "🛒 Seu carrinho está vazio.\n\nEnvie \"ver produtos\" para começar a comprar!"
	msgUserFetchFail = "Erro ao buscar seus dados. Tente novamente."
	msgSeeFirst      = "Por favor, primeiro veja os produtos disponíveis enviando \"ver produtos\"."
	msgNoNumber      = "Não consegui identificar o número. Por favor, envie o número do produto (ex: \"1\", \"2\") ou \"ver produtos\" para ver a lista."
	msgPickProduct   = "Qual você gostaria de comprar? Digite o *número* ou o *nome* do produto.\n\nExemplo: \"1\" ou \"quero o primeiro\""
	msgRemovedEmpty  = "🗑️ Item removido! Seu carrinho está vazio agora."
)

// Machine is the per-user dialogue state machine. Handle classifies one
// inbound message, dispatches it and persists every state change before the
// reply leaves, so a lost reply never desyncs the durable state.
type Machine struct {
	Users      UserStore
	Catalog    Catalog
	Ledger     Ledger
	Sender     transport.Sender
	Classifier nlp.Classifier
	Log        *logrus.Logger
	BaseURL    string

	// Pause between catalog image sends; zero in tests.
	CatalogPause time.Duration
}

func (m *Machine) Handle(ctx context.Context, from, text string) (string, error) {
	res, err := m.Classifier.Classify(ctx, text)
	if err != nil {
		return "", err
	}
	intent := res.Intent
	m.Log.WithFields(logrus.Fields{"intent": intent, "from": from}).Debug("intent classified")

	phone := Digits(from)
	user, err := m.Users.GetByPhone(ctx, phone)
	if err != nil && err != ErrUserNotFound {
		return "", err
	}

	// While the catalog is on screen, a message naming a product is an
	// add-to-cart regardless of what the classifier thought, unless the
	// user is clearly operating on the cart already.
	if user != nil && user.State == StateShowProducts && !cartIntent(intent) {
		if products, perr := m.Catalog.List(ctx); perr == nil && catalog.Mentions(products, text) {
			intent = nlp.IntentAddToCart
		}
	}

	return m.dispatch(ctx, intent, user, from, phone, text)
}

func cartIntent(i nlp.Intent) bool {
	return i == nlp.IntentViewCart || i == nlp.IntentRemoveFromCart || i == nlp.IntentCheckout
}

func (m *Machine) dispatch(ctx context.Context, intent nlp.Intent, user *User, from, phone, text string) (string, error) {
	switch intent {
	case nlp.IntentGreeting:
		return m.greeting(ctx, user, phone)
	case nlp.IntentFarewell:
		return m.farewell(ctx, user)
	case nlp.IntentAgreeing:
		return m.agreeing(ctx, user, from, phone)
	case nlp.IntentRefusing:
		return m.refusing(user), nil
	case nlp.IntentShowProducts:
		return m.showProducts(ctx, user, from, phone)
	case nlp.IntentAddToCart:
		return m.addToCart(ctx, user, phone, text)
	case nlp.IntentViewCart:
		return m.viewCart(ctx, user, phone)
	case nlp.IntentRemoveFromCart:
		return m.removeFromCart(ctx, user, phone, text)
	case nlp.IntentSelectByNumber:
		return m.selectByNumber(ctx, user, phone, text)
	case nlp.IntentCheckout:
		return m.checkout(ctx, user, phone)
	default:
		return msgDefault, nil
	}
}

func (m *Machine) greeting(ctx context.Context, user *User, phone string) (string, error) {
	if user == nil {
		if _, err := m.Users.Create(ctx, phone, StateGreeting); err != nil {
			return "", err
		}
	} else if err := m.Users.SetState(ctx, user.ID, StateGreeting); err != nil {
		return "", err
	}
	return msgWelcome, nil
}

func (m *Machine) farewell(ctx context.Context, user *User) (string, error) {
	if user != nil {
		if err := m.Users.SetState(ctx, user.ID, StateFarewell); err != nil {
			return "", err
		}
	}
	return msgFarewell, nil
}

func (m *Machine) agreeing(ctx context.Context, user *User, from, phone string) (string, error) {
	if user == nil {
		return msgSendOiFirst, nil
	}
	switch user.State {
	case StateGreeting:
		return "", m.listCatalog(ctx, user, from)
	case StateAddToCart:
		return m.checkout(ctx, user, phone)
	}
	return "", nil
}

func (m *Machine) refusing(user *User) string {
	if user == nil {
		return ""
	}
	switch user.State {
	case StateGreeting:
		return msgRefuseBrowse
	case StateAddToCart:
		return msgRefuseBuy
	}
	return ""
}

func (m *Machine) showProducts(ctx context.Context, user *User, from, phone string) (string, error) {
	if user == nil {
		var err error
		user, err = m.Users.Create(ctx, phone, StateShowProducts)
		if err != nil {
			return "", err
		}
	}
	return "", m.listCatalog(ctx, user, from)
}

// listCatalog snapshots the shown titles (numeric selections index into
// that exact snapshot), persists it, then sends one captioned image per
// product with a plain-text closing prompt.
func (m *Machine) listCatalog(ctx context.Context, user *User, from string) error {
	products, err := m.Catalog.List(ctx)
	if err != nil {
		return err
	}

	titles := make([]string, 0, len(products))
	for _, p := range products {
		titles = append(titles, p.Title)
	}
	if err := m.Users.SetCatalogSnapshot(ctx, user.ID, StateShowProducts, titles); err != nil {
		return err
	}

	for i, p := range products {
		color := ""
		if p.Color != "" {
			color = fmt.Sprintf(" (%s)", p.Color)
		}
		caption := fmt.Sprintf("%d. %s%s - %s", i+1, p.Title, color, catalog.BRL(p.PriceCents))

		msg := transport.Message{Text: caption}
		if p.ImageURL != "" {
			msg = transport.Message{ImageURL: p.ImageURL, Caption: caption}
		}
		if err := m.Sender.Send(ctx, from, msg); err != nil {
			m.Log.WithError(err).WithField("product_id", p.ID).Warn("catalog send failed")
		}
		if m.CatalogPause > 0 && i < len(products)-1 {
			time.Sleep(m.CatalogPause)
		}
	}

	return m.Sender.Send(ctx, from, transport.Message{Text: msgPickProduct})
}

func (m *Machine) addToCart(ctx context.Context, user *User, phone, text string) (string, error) {
	if user == nil {
		return msgSendOiFirst, nil
	}
	products, err := m.Catalog.List(ctx)
	if err != nil {
		return "", err
	}
	product, ok := catalog.Match(products, text)
	if !ok {
		return msgWhichAdd, nil
	}
	return m.addProduct(ctx, user, phone, product.ID)
}

func (m *Machine) addProduct(ctx context.Context, user *User, phone string, productID int64) (string, error) {
	items, err := m.Ledger.AddItem(ctx, phone, productID)
	if err != nil {
		return "", err
	}
	if err := m.Users.SetState(ctx, user.ID, StateAddToCart); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("✅ Item adicionado ao carrinho!\n\n🛒 *Seu carrinho:*\n")
	writeCartLines(&b, items)
	fmt.Fprintf(&b, "\n*Total: %s*\n\nGostaria de finalizar a compra?", catalog.BRL(cart.Total(items)))
	return b.String(), nil
}

func (m *Machine) viewCart(ctx context.Context, user *User, phone string) (string, error) {
	if user == nil {
		return msgSendOiFirst, nil
	}
	items, err := m.Ledger.GetCart(ctx, phone)
	if err != nil {
		return msgUserFetchFail, nil
	}
	if len(items) == 0 {
		return msgCartEmpty, nil
	}
	var b strings.Builder
	b.WriteString("🛒 *Seu carrinho:*\n")
	writeCartLines(&b, items)
	fmt.Fprintf(&b, "\n*Total: %s*\n\nPara remover um item, envie \"remover [nome do produto]\"", catalog.BRL(cart.Total(items)))
	return b.String(), nil
}

func (m *Machine) removeFromCart(ctx context.Context, user *User, phone, text string) (string, error) {
	if user == nil {
		return msgSendOiFirst, nil
	}
	products, err := m.Catalog.List(ctx)
	if err != nil {
		return "", err
	}
	product, ok := catalog.Match(products, text)
	if !ok {
		return msgWhichRemove, nil
	}

	items, err := m.Ledger.RemoveItem(ctx, phone, product.ID)
	switch err {
	case nil:
	case cart.ErrEmptyCart:
		return "❌ Carrinho vazio", nil
	case cart.ErrLineNotFound:
		return "❌ Produto não está no carrinho", nil
	default:
		return "", err
	}

	if len(items) == 0 {
		return msgRemovedEmpty, nil
	}
	var b strings.Builder
	b.WriteString("🗑️ Item removido!\n\n🛒 *Seu carrinho:*\n")
	writeCartLines(&b, items)
	fmt.Fprintf(&b, "\n*Total: %s*", catalog.BRL(cart.Total(items)))
	return b.String(), nil
}

func (m *Machine) selectByNumber(ctx context.Context, user *User, phone, text string) (string, error) {
	if user == nil {
		return msgSendOiFirst, nil
	}
	idx, ok := ParseSelection(text)
	if !ok {
		return msgNoNumber, nil
	}
	if len(user.LastShownProducts) == 0 {
		return msgSeeFirst, nil
	}
	if idx >= len(user.LastShownProducts) {
		n := len(user.LastShownProducts)
		return fmt.Sprintf("Ops! Só temos %d produtos disponíveis. Por favor, escolha um número entre 1 e %d.", n, n), nil
	}

	title := user.LastShownProducts[idx]
	products, err := m.Catalog.List(ctx)
	if err != nil {
		return "", err
	}
	for _, p := range products {
		if strings.EqualFold(p.Title, title) {
			return m.addProduct(ctx, user, phone, p.ID)
		}
	}
	// Snapshot refers to a product no longer in the catalog.
	return msgWhichAdd, nil
}

func (m *Machine) checkout(ctx context.Context, user *User, phone string) (string, error) {
	if user == nil {
		return msgSendOiFirst, nil
	}
	if err := m.Users.SetState(ctx, user.ID, StateCheckout); err != nil {
		return "", err
	}
	url := fmt.Sprintf("%s/index.html?userId=%s", m.BaseURL, phone)
	return fmt.Sprintf("🛒 *Finalize sua compra clicando no link:*\n\n%s", url), nil
}

func writeCartLines(b *strings.Builder, items []cart.Item) {
	for _, it := range items {
		fmt.Fprintf(b, "\n• %s\n  Quantidade: %dx\n  Preço: %s\n  Subtotal: %s\n",
			it.Title, it.Quantity, catalog.BRL(it.PriceCents), catalog.BRL(it.SubtotalCents()))
	}
}
