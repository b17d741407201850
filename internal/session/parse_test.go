package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vendabot/vendabot/internal/session"
)

func TestParseSelection(t *testing.T) {
	cases := []struct {
		in  string
		idx int
		ok  bool
	}{
		{"2", 1, true},
		{"  10 ", 9, true},
		{"segundo", 1, true},
		{"quero o primeiro", 0, true},
		{"dois", 1, true},
		{"quero o número 3", 2, true},
		{"décimo", 9, true},
		{"nenhum número aqui", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		idx, ok := session.ParseSelection(c.in)
		assert.Equal(t, c.ok, ok, "input %q", c.in)
		if c.ok {
			assert.Equal(t, c.idx, idx, "input %q", c.in)
		}
	}
}

func TestDigits(t *testing.T) {
	assert.Equal(t, "5511999990000", session.Digits("5511999990000@s.whatsapp.net"))
	assert.Equal(t, "5511999990000", session.Digits("+55 (11) 99999-0000"))
}
