package dialogue

import "strings"

const (
	choicePlaceholder = "{choice}"
	reportPlaceholder = "{report}"
)

// Texts are the bot replies. {choice} and {report} are substituted.
type Texts struct {
	Greeting      string `yaml:"greeting"`
	ChoiceConfirm string `yaml:"choice_confirm"`
	CustomPrompt  string `yaml:"custom_prompt"`
	Recorded      string `yaml:"recorded"`
	Farewell      string `yaml:"farewell"`
}

// DefaultTexts returns the stock Spanish replies.
func DefaultTexts() Texts {
	return Texts{
		Greeting: "¡Hola! Mi nombre es Delia Flores. Te ayudaré a almacenar datos para tí. " +
			"¿Por qué no me das mas información?",
		ChoiceConfirm: "Tu {choice}? ¡Sí, me encantaría saberlo!",
		CustomPrompt:  `De acuerdo, primero envíeme una categoría, por ejemplo, "Lugar del hecho"`,
		Recorded: "¡Listo! Para que lo sepas, esto es lo que ya grabe:{report} " +
			"Puedes contarme más o considerar algo más , vamos.",
		Farewell: "Acumule esta información por ti: {report}¡Hasta la proxima vez!",
	}
}

// WithDefaults fills empty fields from DefaultTexts.
func (t Texts) WithDefaults() Texts {
	def := DefaultTexts()
	if strings.TrimSpace(t.Greeting) == "" {
		t.Greeting = def.Greeting
	}
	if strings.TrimSpace(t.ChoiceConfirm) == "" {
		t.ChoiceConfirm = def.ChoiceConfirm
	}
	if strings.TrimSpace(t.CustomPrompt) == "" {
		t.CustomPrompt = def.CustomPrompt
	}
	if strings.TrimSpace(t.Recorded) == "" {
		t.Recorded = def.Recorded
	}
	if strings.TrimSpace(t.Farewell) == "" {
		t.Farewell = def.Farewell
	}
	return t
}

func (t Texts) choice(label string) string {
	return strings.ReplaceAll(t.ChoiceConfirm, choicePlaceholder, strings.ToLower(label))
}

func (t Texts) recorded(report string) string {
	return strings.ReplaceAll(t.Recorded, reportPlaceholder, report)
}

func (t Texts) farewell(report string) string {
	return strings.ReplaceAll(t.Farewell, reportPlaceholder, report)
}
