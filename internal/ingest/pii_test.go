package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskPII_Phone(t *testing.T) {
	assert.Equal(t, "звоните [PHONE] срочно", MaskPII("звоните +7 (912) 345-67-89 срочно"))
	assert.Equal(t, "номер [PHONE]", MaskPII("номер 89123456789"))
}

func TestMaskPII_Email(t *testing.T) {
	assert.Equal(t, "пишите на [EMAIL]", MaskPII("пишите на ivan.petrov+test@mail.example.ru"))
}

func TestMaskPII_PlainTextUntouched(t *testing.T) {
	s := "доставка опоздала на 2 часа"
	assert.Equal(t, s, MaskPII(s))
}
