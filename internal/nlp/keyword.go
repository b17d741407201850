package nlp

import (
	"context"
	"regexp"
	"strings"
)

var numberRe = regexp.MustCompile(`^\s*\d+\s*$`)

// Keyword is a rule-based stand-in for the trained model, good enough to
// run the bot without it. Phrase tables are pt-BR, matching the shop copy.
type Keyword struct{}

var keywordTable = []struct {
	intent  Intent
	phrases []string
}{
	{IntentViewCart, []string{"ver carrinho", "meu carrinho", "carrinho"}},
	{IntentRemoveFromCart, []string{"remover", "tirar", "excluir"}},
	{IntentShowProducts, []string{"ver produtos", "produtos", "mostrar produtos", "o que você vende"}},
	{IntentCheckout, []string{"checkout", "finalizar", "pagar", "fechar pedido"}},
	{IntentAddToCart, []string{"quero comprar", "adicionar", "comprar", "quero o", "quero a"}},
	{IntentGreeting, []string{"oi", "olá", "ola", "bom dia", "boa tarde", "boa noite", "eae"}},
	{IntentFarewell, []string{"tchau", "até logo", "ate logo", "adeus", "falou"}},
	{IntentAgreeing, []string{"sim", "quero", "pode ser", "claro", "com certeza", "ok", "beleza"}},
	{IntentRefusing, []string{"não", "nao", "agora não", "agora nao", "depois"}},
}

func (Keyword) Classify(_ context.Context, text string) (Result, error) {
	msg := strings.ToLower(strings.TrimSpace(text))
	if numberRe.MatchString(msg) {
		return Result{Intent: IntentSelectByNumber}, nil
	}
	for _, row := range keywordTable {
		for _, phrase := range row.phrases {
			if matchPhrase(msg, phrase) {
				return Result{Intent: row.intent}, nil
			}
		}
	}
	return Result{Intent: IntentNone}, nil
}

// Single-word phrases must match a whole token; "dois" contains "oi"
// but is not a greeting.
func matchPhrase(msg, phrase string) bool {
	if strings.Contains(phrase, " ") {
		return strings.Contains(msg, phrase)
	}
	for _, w := range strings.Fields(msg) {
		if w == phrase {
			return true
		}
	}
	return false
}
